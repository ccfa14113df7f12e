package wifi

// Driver is the radio the Manager controls. Implementations report
// link-layer progress by sending Events on the channel given to Start; they
// must never block on that channel for long, since the Manager's event loop
// is its only reader.
type Driver interface {
	// Start brings the station interface up and later emits EventStarted.
	Start(events chan<- Event) error

	// Associate asks the radio to join the network. The result arrives as
	// EventGotIP or EventDisconnected.
	Associate(ssid, password string) error

	// Disconnect drops the current association.
	Disconnect() error

	// Stop shuts the station interface down.
	Stop() error

	// RSSI returns the current signal strength in dBm.
	RSSI() (int, error)
}
