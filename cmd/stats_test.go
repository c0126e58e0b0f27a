// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/semonitor/internal/config"
	"github.com/Thermoquad/semonitor/internal/logging"
)

func TestQuietConsole(t *testing.T) {
	savedCfg, savedLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = savedCfg, savedLogger })

	var buf bytes.Buffer
	cfg = config.Defaults()
	logger = logging.New(logging.Config{Level: "debug"}, &buf)

	quietConsole()
	logger.Warn().Msg("dropping message")

	if buf.Len() != 0 {
		t.Errorf("console output while quiet: %q", buf.String())
	}
	if logger.GetLevel() != zerolog.Disabled {
		t.Errorf("level = %v, want disabled", logger.GetLevel())
	}
	if cfg.Output.JSON != "" {
		t.Errorf("JSON output = %q, want disabled", cfg.Output.JSON)
	}
}
