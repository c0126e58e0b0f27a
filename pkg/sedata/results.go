// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sedata

// Result is a decoded payload. Decode returns a nil Result for functions
// that carry no arguments.
type Result interface {
	Kind() string
}

// OpMode is the coordinator's operating mode, by name.
type OpMode struct {
	Mode string `json:"opmode"`
}

// SOKStatus is the server-connection status, by name.
type SOKStatus struct {
	Status string `json:"sokstatus"`
}

// Param is a single 16-bit parameter id or type code.
type Param struct {
	Param uint16 `json:"param"`
}

// Long is a single 32-bit value.
type Long struct {
	Param uint32 `json:"param"`
}

// Version is a firmware version rendered as "MMMM.mmmm".
type Version struct {
	Version string `json:"version"`
}

// ValueType is a 32-bit value tagged with its 16-bit data type.
type ValueType struct {
	Value uint32 `json:"value"`
	Type  uint16 `json:"type"`
}

// ParamValue is a parameter write request.
type ParamValue struct {
	Param uint16 `json:"param"`
	Value uint32 `json:"value"`
}

// OffsetLength is one chunk of a firmware upgrade image.
type OffsetLength struct {
	Offset uint32 `json:"offset"`
	Length uint32 `json:"length"`
	Data   []byte `json:"data"`
}

// Time is a UTC epoch timestamp with a timezone offset in seconds.
type Time struct {
	Time uint32 `json:"time"`
	TZ   int32  `json:"tz"`
}

// Status is the coordinator status vector.
type Status struct {
	Status []uint16 `json:"status"`
}

func (OpMode) Kind() string       { return "opmode" }
func (SOKStatus) Kind() string    { return "sokstatus" }
func (Param) Kind() string        { return "param" }
func (Long) Kind() string         { return "long" }
func (Version) Kind() string      { return "version" }
func (ValueType) Kind() string    { return "valuetype" }
func (ParamValue) Kind() string   { return "paramvalue" }
func (OffsetLength) Kind() string { return "offsetlength" }
func (Time) Kind() string         { return "time" }
func (Status) Kind() string       { return "status" }
func (*DeviceData) Kind() string  { return "devicedata" }
