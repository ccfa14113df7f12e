package config

import "time"

// Config represents the entire telemetryd configuration file.
type Config struct {
	Version      int          `yaml:"version"`
	LogLevel     string       `yaml:"log_level"`
	WiFi         WiFi         `yaml:"wifi"`
	API          API          `yaml:"api"`
	Transmission Transmission `yaml:"transmission"`
	Status       Status       `yaml:"status"`
}

// WiFi holds the station link settings.
type WiFi struct {
	Driver         string        `yaml:"driver"`              // "sim" or "hostif"
	Interface      string        `yaml:"interface,omitempty"` // host interface watched by the hostif driver
	SSID           string        `yaml:"ssid"`
	Password       string        `yaml:"password,omitempty"` // prefer TELEMETRYD_WIFI_PASSWORD
	MaxRetry       int           `yaml:"max_retry"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// API holds the telemetry endpoint settings.
type API struct {
	Endpoint       string        `yaml:"endpoint"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ResponseBuffer int           `yaml:"response_buffer"` // bytes of response body kept per request
	UserAgent      string        `yaml:"user_agent,omitempty"`
	Discover       bool          `yaml:"discover"` // resolve the endpoint over mDNS at startup
}

// Transmission holds the periodic delivery schedule.
type Transmission struct {
	Interval           time.Duration `yaml:"interval"`
	ReportEvery        int           `yaml:"report_every"` // emit a status report every N cycles
	ReconnectOnFailure bool          `yaml:"reconnect_on_failure"`
}

// Status holds the local status API settings.
type Status struct {
	Listen    string `yaml:"listen"` // empty disables the status API
	Advertise bool   `yaml:"advertise"`
}

// Defaults mirrored from the firmware build configuration.
const (
	DefaultMaxRetry       = 5
	DefaultConnectTimeout = 10 * time.Second
	DefaultEndpoint       = "http://localhost:8080/api/telemetry"
	DefaultRequestTimeout = 5 * time.Second
	DefaultResponseBuffer = 512
	DefaultInterval       = 30 * time.Second
	DefaultReportEvery    = 10
	DefaultStatusListen   = "127.0.0.1:8090"
)

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		WiFi: WiFi{
			Driver:         "sim",
			SSID:           "telemetry",
			MaxRetry:       DefaultMaxRetry,
			ConnectTimeout: DefaultConnectTimeout,
		},
		API: API{
			Endpoint:       DefaultEndpoint,
			RequestTimeout: DefaultRequestTimeout,
			ResponseBuffer: DefaultResponseBuffer,
		},
		Transmission: Transmission{
			Interval:           DefaultInterval,
			ReportEvery:        DefaultReportEvery,
			ReconnectOnFailure: true,
		},
		Status: Status{
			Listen: DefaultStatusListen,
		},
	}
}
