// Package ui provides terminal rendering for the telemetryd CLI.
//
// This package uses Bubble Tea and Lipgloss. Most commands follow a "run
// once and exit" pattern: they build a Header, do their work, then print a
// Result box. The status command renders an agent snapshot as a panel.
//
// # Live View
//
// WatchModel is the only interactive component. It consumes events from a
// running agent's status stream and redraws the panel as transitions and
// delivery outcomes arrive:
//
//	events := make(chan statusapi.Event, 16)
//	done := make(chan error, 1)
//	go func() {
//	    done <- statusapi.Subscribe(ctx, addr, func(ev statusapi.Event) { events <- ev })
//	    close(events)
//	}()
//	_, err := tea.NewProgram(ui.NewWatchModel(addr, events, done)).Run()
//
// # Logging Integration
//
// Commands other than "run" keep zap silent unless TELEMETRYD_LOG_LEVEL is
// set, so that curated output is not interleaved with log lines.
package ui
