// Package tui implements the interactive "telemetryd setup" wizard.
//
// # Flow
//
//  1. Discovery: scan the local network for telemetry collectors
//     advertised over mDNS, or type an endpoint URL by hand.
//  2. Settings: WiFi SSID, driver, interface and transmission interval.
//  3. Review: confirm to write the configuration file, or go back.
//
// The wizard never touches the filesystem itself. Run returns the edited
// configuration and the caller saves it.
//
// # Screens
//
// Every screen renders through RenderApplicationContainer so that the
// header and help footer stay in place while the content changes.
package tui
