// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sedata

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Device classes
const (
	ClassInverter  = "inverter"
	ClassOptimizer = "optimizer"
	ClassEvent     = "event"
)

// idStatusBit is set by some devices in their raw id and is not part of
// the identity.
const idStatusBit = 0x00800000

// Item naming tables. Each starts with Date, Time and ID; the remaining
// names label the decoded values in order.
var (
	InverterItems = []string{
		"Date", "Time", "ID",
		"Uptime", "Interval", "Temp", "Eday", "Eac", "Vac", "Iac", "Freq",
		"Vdc", "Etot", "Pmax", "Pac",
	}
	OptimizerItems = []string{
		"Date", "Time", "ID",
		"Inverter", "Uptime", "Vmod", "Vopt", "Imod", "Eday", "Temp",
	}
	EventItems = []string{
		"Date", "Time", "ID",
		"Type", "Event1", "Event2", "Event3",
	}
)

// NormalizeRawID clears the status bit from a raw device id.
func NormalizeRawID(raw uint32) uint32 {
	return raw &^ idStatusBit
}

// NormalizeID renders a raw device id as uppercase hex with the status bit
// cleared.
func NormalizeID(raw uint32) string {
	return strings.ToUpper(strconv.FormatUint(uint64(NormalizeRawID(raw)), 16))
}

// Field is one named telemetry value.
type Field struct {
	Name  string
	Value any
}

// Record is one decoded device sub-record. It serializes as a flat object
// with Date, Time and ID first, followed by the fields in table order.
type Record struct {
	Class     string
	Date      string
	Time      string
	ID        string
	Fields    []Field
	Timestamp time.Time
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// newRecord assembles a record from a naming table and its values. values
// excludes the three leading Date, Time and ID entries.
func newRecord(class, id string, ts time.Time, items []string, values []any) *Record {
	r := &Record{
		Class:     class,
		Date:      ts.Format("2006-01-02"),
		Time:      ts.Format("15:04:05"),
		ID:        id,
		Timestamp: ts,
		Fields:    make([]Field, 0, len(values)),
	}
	for i, v := range values {
		r.Fields = append(r.Fields, Field{Name: items[i+3], Value: v})
	}
	return r
}

// MarshalJSON keeps field order stable.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(i int, name string, value any) error {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		b, err := json.Marshal(finite(value))
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}

	if err := write(0, "Date", r.Date); err != nil {
		return nil, err
	}
	if err := write(1, "Time", r.Time); err != nil {
		return nil, err
	}
	if err := write(2, "ID", r.ID); err != nil {
		return nil, err
	}
	for i, f := range r.Fields {
		if err := write(i+3, f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// finite replaces NaN and infinite floats with nil. Devices report 0xFFFFFFFF
// for unavailable sensors and JSON has no encoding for it.
func finite(v any) any {
	switch f := v.(type) {
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil
		}
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	}
	return v
}

var recordEncMode, _ = cbor.CanonicalEncOptions().EncMode()

// MarshalCBOR encodes the record as a string-keyed map in canonical order.
func (r *Record) MarshalCBOR() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+3)
	m["Date"] = r.Date
	m["Time"] = r.Time
	m["ID"] = r.ID
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return recordEncMode.Marshal(m)
}

// UnknownDevice is a device sub-record whose tag has no decoder.
type UnknownDevice struct {
	Tag    uint16 `json:"tag"`
	ID     string `json:"id"`
	Length uint16 `json:"length"`
	Raw    []byte `json:"raw"`
}

// DeviceData is the decoded form of a performance-data payload, keyed by
// normalized device id.
type DeviceData struct {
	Inverters  map[string]*Record `json:"inverters"`
	Optimizers map[string]*Record `json:"optimizers"`
	Events     map[string]*Record `json:"events"`
	Skipped    []UnknownDevice    `json:"skipped,omitempty"`
}

func newDeviceData() *DeviceData {
	return &DeviceData{
		Inverters:  make(map[string]*Record),
		Optimizers: make(map[string]*Record),
		Events:     make(map[string]*Record),
	}
}

// Records returns every decoded record: inverters, then optimizers, then
// events, each sorted by id.
func (d *DeviceData) Records() []*Record {
	out := make([]*Record, 0, len(d.Inverters)+len(d.Optimizers)+len(d.Events))
	for _, m := range []map[string]*Record{d.Inverters, d.Optimizers, d.Events} {
		for _, id := range slices.Sorted(maps.Keys(m)) {
			out = append(out, m[id])
		}
	}
	return out
}

// Len returns the number of decoded records.
func (d *DeviceData) Len() int {
	return len(d.Inverters) + len(d.Optimizers) + len(d.Events)
}
