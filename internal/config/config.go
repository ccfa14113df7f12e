package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "telemetryd"
	configFile = "config.yaml"

	// PasswordEnvVar overrides wifi.password so secrets stay out of the file.
	PasswordEnvVar = "TELEMETRYD_WIFI_PASSWORD"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/telemetryd or $HOME/.config/telemetryd
//   - macOS: $HOME/.config/telemetryd
//   - Windows: %LOCALAPPDATA%\telemetryd
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load reads the configuration at path. An empty path means the default
// location. A missing file yields Default(). The result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		cfg.WiFi.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field the reporter depends on.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("%w: unsupported config version %d (expected 1)", ErrInvalid, c.Version)
	}

	switch c.WiFi.Driver {
	case "sim":
	case "hostif":
		if c.WiFi.Interface == "" {
			return fmt.Errorf("%w: wifi.interface is required for the hostif driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown wifi.driver %q", ErrInvalid, c.WiFi.Driver)
	}
	if c.WiFi.SSID == "" {
		return fmt.Errorf("%w: wifi.ssid is required", ErrInvalid)
	}
	if c.WiFi.MaxRetry < 0 {
		return fmt.Errorf("%w: wifi.max_retry must be >= 0", ErrInvalid)
	}
	if c.WiFi.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: wifi.connect_timeout must be > 0", ErrInvalid)
	}

	if !c.API.Discover {
		u, err := url.Parse(c.API.Endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: api.endpoint %q is not an http(s) URL", ErrInvalid, c.API.Endpoint)
		}
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("%w: api.request_timeout must be > 0", ErrInvalid)
	}
	if c.API.ResponseBuffer <= 0 {
		return fmt.Errorf("%w: api.response_buffer must be > 0", ErrInvalid)
	}

	if c.Transmission.Interval <= 0 {
		return fmt.Errorf("%w: transmission.interval must be > 0", ErrInvalid)
	}
	if c.Transmission.ReportEvery <= 0 {
		return fmt.Errorf("%w: transmission.report_every must be > 0", ErrInvalid)
	}

	return nil
}

// Save writes the configuration to path (default location when empty).
// Performs an atomic write to prevent corruption on crash. The password is
// never written.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *c
	out.WiFi.Password = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# telemetryd configuration
#
# The WiFi password is never stored here; set ` + PasswordEnvVar + `.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
