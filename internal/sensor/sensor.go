package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind identifies a sensor variant.
type Kind int

const (
	KindCPUTemp Kind = iota
	KindUptime
)

// String returns the sensor name used in logs and status output
func (k Kind) String() string {
	switch k {
	case KindCPUTemp:
		return "cpu_temp"
	case KindUptime:
		return "uptime"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Temperature simulation parameters.
const (
	TempBase      = 28.0
	TempVariation = 5.0
	TempPeriod    = 300.0 // seconds
	TempMin       = 20.0
	TempMax       = 45.0
)

// UptimeMaxLen is the capacity of the formatted uptime string, terminator included.
const UptimeMaxLen = 32

var (
	// ErrUptimeOverflow is returned when the formatted uptime does not fit UptimeMaxLen.
	ErrUptimeOverflow = errors.New("uptime string exceeds buffer")
	// ErrUnknownKind is returned for a Kind with no registered sensor.
	ErrUnknownKind = errors.New("unknown sensor kind")
	// ErrDisabled is returned by ReadSingle for a disabled sensor.
	ErrDisabled = errors.New("sensor disabled")
)

// Value is the result of a single sensor read. Exactly one field is
// meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Float  float64
	Text   string
	ReadAt time.Time
}

// Sensor is one readable variant. Adding a new variant means adding a type
// that implements Sensor and registering it with the Sampler.
type Sensor interface {
	Kind() Kind
	Read(now time.Time) (Value, error)
}

// CPUTemp simulates a slowly varying CPU temperature.
type CPUTemp struct {
	Start time.Time
}

// Kind implements Sensor
func (s CPUTemp) Kind() Kind { return KindCPUTemp }

// Read implements Sensor
func (s CPUTemp) Read(now time.Time) (Value, error) {
	return Value{Kind: KindCPUTemp, Float: SimulatedTemperature(now.Sub(s.Start)), ReadAt: now}, nil
}

// SimulatedTemperature returns the synthetic temperature after elapsed time:
// a 5 minute sine around 28°C plus a small sawtooth, clamped to [20,45].
func SimulatedTemperature(elapsed time.Duration) float64 {
	secs := int64(elapsed / time.Second)

	variation := TempVariation * math.Sin(float64(secs)*2.0*math.Pi/TempPeriod)
	micro := float64(secs%17)*0.1 - 0.8

	temp := TempBase + variation + micro
	if temp < TempMin {
		temp = TempMin
	}
	if temp > TempMax {
		temp = TempMax
	}
	return temp
}

// Uptime reports time since Start as "Xh Ym Zs".
type Uptime struct {
	Start time.Time
}

// Kind implements Sensor
func (s Uptime) Kind() Kind { return KindUptime }

// Read implements Sensor
func (s Uptime) Read(now time.Time) (Value, error) {
	text, err := FormatUptime(now.Sub(s.Start))
	if err != nil {
		return Value{Kind: KindUptime, ReadAt: now}, err
	}
	return Value{Kind: KindUptime, Text: text, ReadAt: now}, nil
}

// FormatUptime renders d as "%dh %dm %ds". The result must fit in
// UptimeMaxLen-1 bytes; longer strings are an ErrUptimeOverflow.
func FormatUptime(d time.Duration) (string, error) {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	s := fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
	if len(s) >= UptimeMaxLen {
		return "", fmt.Errorf("%w: %d bytes", ErrUptimeOverflow, len(s))
	}
	return s, nil
}
