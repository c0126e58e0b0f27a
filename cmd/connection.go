// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/semonitor/internal/config"
	"github.com/Thermoquad/semonitor/internal/logging"
	"github.com/Thermoquad/semonitor/internal/output"
	"github.com/Thermoquad/semonitor/internal/session"
	"github.com/Thermoquad/semonitor/internal/transport"
	"github.com/Thermoquad/semonitor/pkg/sedata"
)

// Credentials for output sinks are read from the environment only
const (
	envMQTTPassword = "SEMONITOR_MQTT_PASSWORD"
	envInfluxToken  = "SEMONITOR_INFLUX_TOKEN"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// OpenConnection builds the transport opener described by the configuration
func OpenConnection() (*transport.Opener, error) {
	t := cfg.Transport
	opts := transport.Options{
		Kind:          transport.Kind(t.Kind),
		Path:          t.Path,
		Follow:        t.Follow,
		Port:          t.Port,
		Baud:          t.Baud,
		Listen:        t.Listen,
		Dial:          t.Dial,
		URL:           t.URL,
		Username:      t.Username,
		SkipTLSVerify: t.SkipTLSVerify,
	}
	if opts.Kind == transport.KindWebSocket && opts.Username != "" {
		password, err := transport.GetPassword()
		if err != nil {
			return nil, err
		}
		opts.Password = password
	}
	return transport.NewOpener(opts, logger), nil
}

// newDecoder returns the payload decoder shared by all commands
func newDecoder() *sedata.Decoder {
	return sedata.NewDecoder(sedata.WithLogger(logging.Component(logger, "decoder")))
}

// newEmitter opens every configured output sink
func newEmitter() (*output.Emitter, error) {
	var sinks []output.Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	o := cfg.Output
	if o.JSON != "" {
		w, err := output.OpenStream(o.JSON)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, output.NewJSONSink(w))
	}
	if o.CBOR != "" {
		w, err := output.OpenStream(o.CBOR)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, output.NewCBORSink(w))
	}
	if m := o.MQTT; m != nil {
		s, err := output.NewMQTTSink(output.MQTTOptions{
			Broker:   m.Broker,
			Topic:    m.Topic,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: os.Getenv(envMQTTPassword),
			QoS:      byte(m.QoS),
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if i := o.Influx; i != nil {
		token := i.Token
		if env := os.Getenv(envInfluxToken); env != "" {
			token = env
		}
		sinks = append(sinks, output.NewInfluxSink(output.InfluxOptions{
			URL:    i.URL,
			Token:  token,
			Org:    i.Org,
			Bucket: i.Bucket,
		}))
	}

	return output.NewEmitter(sinks, output.WithEmitterLogger(logging.Component(logger, "output"))), nil
}

// sessionConfig maps the configuration onto session behavior. The returned
// closer releases the raw capture file, if any.
func sessionConfig(c config.Config) (session.Config, io.Closer, error) {
	sc := session.Config{
		Passive:        c.Transport.Passive,
		Network:        c.Transport.Kind == string(transport.KindNetwork),
		Master:         c.Master.Enabled,
		MasterAddress:  uint32(c.Master.Address),
		RoundInterval:  c.Session.RoundInterval.Std(),
		CommandDelay:   c.Session.CommandDelay.Std(),
		ReleaseTimeout: c.Session.ReleaseTimeout.Std(),
		HaltOnError:    c.Session.HaltOnError,
	}
	for _, s := range c.Master.Slaves {
		sc.Slaves = append(sc.Slaves, uint32(s))
	}
	if c.Firmware.File != "" {
		sc.Firmware = session.NewFirmwareBuffer(c.Firmware.File, c.Firmware.Size)
	}

	var closer io.Closer = nopCloser{}
	if c.Transport.Record != "" {
		f, err := os.Create(c.Transport.Record)
		if err != nil {
			return session.Config{}, nil, fmt.Errorf("failed to create capture file: %w", err)
		}
		sc.Record = f
		closer = f
	}
	return sc, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newSession wires transport, decoder and outputs into a session. The
// returned cleanup closes everything the session does not own.
func newSession(opts ...session.Option) (*session.Session, func() error, error) {
	opener, err := OpenConnection()
	if err != nil {
		return nil, nil, err
	}
	em, err := newEmitter()
	if err != nil {
		return nil, nil, err
	}
	sc, rec, err := sessionConfig(cfg)
	if err != nil {
		em.Close()
		return nil, nil, err
	}

	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	s := session.New(sc, opener, newDecoder(), em, opts...)

	cleanup := func() error {
		return errors.Join(opener.Close(), em.Close(), rec.Close())
	}
	return s, cleanup, nil
}
