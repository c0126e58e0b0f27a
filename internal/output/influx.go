// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package output

import (
	"context"
	"fmt"

	"github.com/Thermoquad/semonitor/pkg/sedata"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxOptions configures the InfluxDB sink
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes device records as points: one measurement per device
// class, tagged with the device id and timestamped by the device.
type InfluxSink struct {
	writer pointWriter
	close  func()
}

// NewInfluxSink creates a sink writing synchronously to the bucket
func NewInfluxSink(opts InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		writer: client.WriteAPIBlocking(opts.Org, opts.Bucket),
		close:  client.Close,
	}
}

func (s *InfluxSink) Write(ctx context.Context, rec *Record) error {
	dd, ok := rec.Data.(*sedata.DeviceData)
	if !ok {
		return nil
	}
	records := dd.Records()
	if len(records) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(records))
	for _, r := range records {
		points = append(points, recordPoint(r))
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx sink: %w", err)
	}
	return nil
}

func recordPoint(r *sedata.Record) *write.Point {
	p := influxdb2.NewPointWithMeasurement(r.Class).
		AddTag("id", r.ID).
		SetTime(r.Timestamp)
	for _, f := range r.Fields {
		p.AddField(f.Name, f.Value)
	}
	return p
}

func (s *InfluxSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
