// Package payload encodes sensor readings into the telemetry wire format.
//
// The wire format is a JSON object with exactly two fields:
//
//	{"cpu_temp": 27.3, "sys_uptime": "0h 0m 12s"}
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/muurk/telemetryd/internal/sensor"
)

// Field names on the wire.
const (
	FieldCPUTemp = "cpu_temp"
	FieldUptime  = "sys_uptime"
)

// ErrNonFinite is returned when the temperature cannot be represented in JSON.
var ErrNonFinite = errors.New("cpu_temp is not a finite number")

// Wire is the JSON document pushed to the endpoint.
type Wire struct {
	CPUTemp float64 `json:"cpu_temp"`
	Uptime  string  `json:"sys_uptime"`
}

// FromReading projects a reading onto the wire schema.
func FromReading(r sensor.Reading) Wire {
	return Wire{CPUTemp: r.CPUTemp, Uptime: r.Uptime}
}

// Encode serializes a reading.
func Encode(r sensor.Reading) ([]byte, error) {
	if math.IsNaN(r.CPUTemp) || math.IsInf(r.CPUTemp, 0) {
		return nil, ErrNonFinite
	}
	data, err := json.Marshal(FromReading(r))
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return data, nil
}

// Decode parses a wire document. Both fields must be present.
func Decode(data []byte) (Wire, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Wire{}, fmt.Errorf("decode payload: %w", err)
	}
	for _, f := range []string{FieldCPUTemp, FieldUptime} {
		if _, ok := raw[f]; !ok {
			return Wire{}, fmt.Errorf("decode payload: missing field %q", f)
		}
	}

	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Wire{}, fmt.Errorf("decode payload: %w", err)
	}
	return w, nil
}

// Validate reports whether data is well-formed JSON.
func Validate(data []byte) bool {
	return len(data) > 0 && json.Valid(data)
}
