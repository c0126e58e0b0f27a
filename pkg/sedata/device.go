// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sedata

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// decodeDeviceData walks the sub-records of a performance-data payload.
// Each sub-record is an 8-byte header (tag u16, id u32, length u16)
// followed by length bytes.
func (d *Decoder) decodeDeviceData(data []byte) (*DeviceData, error) {
	dd := newDeviceData()
	ptr := 0
	for ptr < len(data) {
		if len(data)-ptr < deviceHeaderLen {
			return nil, truncated("device header", deviceHeaderLen, len(data)-ptr)
		}
		tag := binary.LittleEndian.Uint16(data[ptr:])
		id := NormalizeID(binary.LittleEndian.Uint32(data[ptr+2:]))
		devLen := int(binary.LittleEndian.Uint16(data[ptr+6:]))
		ptr += deviceHeaderLen

		if len(data)-ptr < devLen {
			return nil, truncated(fmt.Sprintf("device %s", id), devLen, len(data)-ptr)
		}
		dev := data[ptr : ptr+devLen]

		var rec *Record
		var err error
		switch tag {
		case TagOptimizer:
			rec, err = d.decodeOptimizer(id, dev)
			if err == nil {
				dd.Optimizers[id] = rec
			}
		case TagCompactOptimizer:
			rec, err = d.decodeCompactOptimizer(id, dev)
			if err == nil {
				dd.Optimizers[id] = rec
			}
		case TagInverter:
			rec, err = d.decodeInverter(id, dev)
			if err == nil {
				dd.Inverters[id] = rec
			}
		case TagEvent:
			rec, err = d.decodeEvent(id, dev)
			if err == nil {
				dd.Events[id] = rec
			}
		default:
			d.log.Warn().
				Uint16("tag", tag).
				Str("id", id).
				Int("len", devLen).
				Hex("data", data[ptr-deviceHeaderLen:ptr+devLen]).
				Msg("unknown device type")
			dd.Skipped = append(dd.Skipped, UnknownDevice{
				Tag:    tag,
				ID:     id,
				Length: uint16(devLen),
				Raw:    append([]byte(nil), dev...),
			})
		}
		if err != nil {
			return nil, err
		}
		if rec != nil {
			d.logRecord(tag, devLen, rec)
		}
		ptr += devLen
	}
	return dd, nil
}

func (d *Decoder) timestamp(epoch uint32) time.Time {
	return time.Unix(int64(epoch), 0).In(d.loc)
}

// decodeOptimizer decodes the legacy optimizer layout:
// ts, inverter, reserved, uptime (u32) then vmod, vopt, imod, eday, temp (f32).
func (d *Decoder) decodeOptimizer(id string, b []byte) (*Record, error) {
	if len(b) < optimizerLen {
		return nil, truncated("optimizer "+id, optimizerLen, len(b))
	}
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	f32 := func(i int) float32 { return math.Float32frombits(u32(i)) }

	values := []any{
		NormalizeID(u32(1)),
		u32(3),
		f32(4), f32(5), f32(6), f32(7), f32(8),
	}
	return newRecord(ClassOptimizer, id, d.timestamp(u32(0)), OptimizerItems, values), nil
}

// decodeCompactOptimizer decodes the bit-packed optimizer layout. It
// carries no inverter id, which is reported as "0".
func (d *Decoder) decodeCompactOptimizer(id string, b []byte) (*Record, error) {
	if len(b) < compactOptimizerLen {
		return nil, truncated("compact optimizer "+id, compactOptimizerLen, len(b))
	}
	ts := binary.LittleEndian.Uint32(b[0:4])
	uptime := binary.LittleEndian.Uint16(b[4:6])

	vpan := 0.125 * float64(uint16(b[6])|(uint16(b[7])<<8&0x300))
	vopt := 0.125 * float64(uint16(b[7])>>2|(uint16(b[8])<<6&0x3C0))
	imod := 0.00625 * float64(uint16(b[9])<<4|(uint16(b[8])>>4&0xF))
	eday := 0.25 * float64(uint16(b[11])<<8|uint16(b[10]))
	temp := 2.0 * float64(int8(b[12]))

	values := []any{"0", uptime, vpan, vopt, imod, eday, temp}
	return newRecord(ClassOptimizer, id, d.timestamp(ts), OptimizerItems, values), nil
}

// decodeInverter decodes the inverter layout: ts, uptime, interval (u32);
// temp, eday, eac, vac, iac, freq (f32); two reserved words; vdc (f32);
// one reserved word; etot, pmax, pac (f32).
func (d *Decoder) decodeInverter(id string, b []byte) (*Record, error) {
	if len(b) < inverterLen {
		return nil, truncated("inverter "+id, inverterLen, len(b))
	}
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	f32 := func(i int) float32 { return math.Float32frombits(u32(i)) }

	values := []any{
		u32(1), u32(2),
		f32(3), f32(4), f32(5), f32(6), f32(7), f32(8),
		f32(11),
		f32(13), f32(14), f32(15),
	}
	return newRecord(ClassInverter, id, d.timestamp(u32(0)), InverterItems, values), nil
}

// decodeEvent decodes a wake/sleep event. Event1 is always a timestamp.
// Event2 is a timestamp when Type is zero, otherwise Event3 is.
func (d *Decoder) decodeEvent(id string, b []byte) (*Record, error) {
	if len(b) < eventLen {
		return nil, truncated("event "+id, eventLen, len(b))
	}
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }

	eventType := u32(1)
	values := []any{eventType, d.asctime(u32(2)), u32(3), u32(4)}
	if eventType == 0 {
		values[2] = d.asctime(u32(3))
	} else {
		values[3] = d.asctime(u32(4))
	}
	return newRecord(ClassEvent, id, d.timestamp(u32(0)), EventItems, values), nil
}

func (d *Decoder) asctime(epoch uint32) string {
	return d.timestamp(epoch).Format(time.ANSIC)
}

func (d *Decoder) logRecord(tag uint16, devLen int, rec *Record) {
	ev := d.log.Debug().
		Str("class", rec.Class).
		Str("id", rec.ID).
		Uint16("tag", tag).
		Int("len", devLen).
		Str("date", rec.Date).
		Str("time", rec.Time)
	for _, f := range rec.Fields {
		ev = ev.Interface(f.Name, f.Value)
	}
	ev.Msg("device record")
}
