package sensor

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
)

// Reading is one consolidated sample. It is immutable once produced.
type Reading struct {
	CPUTemp   float64
	Uptime    string
	Timestamp time.Time
	Valid     bool
}

// Placeholders written into Reading.Uptime.
const (
	UptimeDisabled = "DISABLED"
	UptimeError    = "ERROR"
)

// Stats holds sampler counters.
type Stats struct {
	Enabled    map[Kind]bool
	ReadCount  uint64
	ErrorCount uint64
	LastRead   time.Time
}

// Sampler reads every enabled sensor into a Reading.
type Sampler struct {
	now     func() time.Time
	mu      sync.Mutex
	sensors map[Kind]Sensor
	enabled map[Kind]bool
	stats   Stats
}

// NewSampler creates a sampler with the CPU temperature and uptime sensors
// enabled, both measuring from start.
func NewSampler(start time.Time) *Sampler {
	return NewSamplerWithClock(start, time.Now)
}

// NewSamplerWithClock is NewSampler with an injectable clock.
func NewSamplerWithClock(start time.Time, now func() time.Time) *Sampler {
	s := &Sampler{
		now:     now,
		sensors: make(map[Kind]Sensor),
		enabled: make(map[Kind]bool),
	}
	s.Register(CPUTemp{Start: start})
	s.Register(Uptime{Start: start})
	return s
}

// Register adds or replaces the sensor for its kind and enables it.
func (s *Sampler) Register(sensor Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors[sensor.Kind()] = sensor
	s.enabled[sensor.Kind()] = true
}

// Enable turns a sensor on or off.
func (s *Sampler) Enable(kind Kind, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[kind]; !ok {
		return ErrUnknownKind
	}
	s.enabled[kind] = on
	logging.Info("Sensor toggled", zap.Stringer("sensor", kind), zap.Bool("enabled", on))
	return nil
}

// Sample reads all sensors. Disabled sensors contribute placeholder values.
// A failed read marks the reading invalid and is returned as an error
// alongside the partial reading.
func (s *Sampler) Sample() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r := Reading{Timestamp: now, Valid: true}
	var errs []error

	if s.enabled[KindCPUTemp] {
		v, err := s.sensors[KindCPUTemp].Read(now)
		if err != nil {
			logging.Warn("Failed to read CPU temperature", zap.Error(err))
			r.Valid = false
			s.stats.ErrorCount++
			errs = append(errs, err)
		} else {
			r.CPUTemp = v.Float
		}
	}

	if s.enabled[KindUptime] {
		v, err := s.sensors[KindUptime].Read(now)
		if err != nil {
			logging.Warn("Failed to read system uptime", zap.Error(err))
			r.Valid = false
			r.Uptime = UptimeError
			s.stats.ErrorCount++
			errs = append(errs, err)
		} else {
			r.Uptime = v.Text
		}
	} else {
		r.Uptime = UptimeDisabled
	}

	if len(errs) > 0 {
		return r, errors.Join(errs...)
	}

	s.stats.ReadCount++
	s.stats.LastRead = now
	logging.Debug("Sensor read",
		zap.Float64("cpu_temp", r.CPUTemp),
		zap.String("uptime", r.Uptime),
	)
	return r, nil
}

// ReadSingle reads one sensor without touching the others.
func (s *Sampler) ReadSingle(kind Kind) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sensor, ok := s.sensors[kind]
	if !ok {
		return Value{}, ErrUnknownKind
	}
	if !s.enabled[kind] {
		return Value{}, ErrDisabled
	}
	return sensor.Read(s.now())
}

// Stats returns a snapshot of the sampler counters.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.Enabled = make(map[Kind]bool, len(s.enabled))
	for k, v := range s.enabled {
		out.Enabled[k] = v
	}
	return out
}

// ResetStats zeroes the read/error counters.
func (s *Sampler) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
}
