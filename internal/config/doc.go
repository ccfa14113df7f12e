// Package config provides configuration management for telemetryd.
//
// The configuration is a YAML file holding the WiFi station settings, the
// telemetry endpoint, the transmission schedule and the local status API
// address. Every value is fixed at startup and handed to the reporter core
// as a constant.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/telemetryd/config.yaml or $HOME/.config/telemetryd/config.yaml
//   - macOS: $HOME/.config/telemetryd/config.yaml
//   - Windows: %LOCALAPPDATA%\telemetryd\config.yaml
//
// # Example
//
//	version: 1
//	log_level: info
//	wifi:
//	  driver: hostif
//	  interface: wlan0
//	  ssid: workshop
//	  max_retry: 5
//	  connect_timeout: 10s
//	api:
//	  endpoint: http://collector.local:8080/api/telemetry
//	  request_timeout: 5s
//	  response_buffer: 512
//	transmission:
//	  interval: 30s
//	  report_every: 10
//	status:
//	  listen: 127.0.0.1:8090
//
// # Security
//
// The WiFi password is never written by Save. Supply it through the
// TELEMETRYD_WIFI_PASSWORD environment variable.
package config
