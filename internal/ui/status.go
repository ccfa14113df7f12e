package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/sensor"
	"github.com/muurk/telemetryd/internal/wifi"
)

// StatusColor returns the color used for a connectivity status
func StatusColor(s wifi.Status) lipgloss.Color {
	switch s {
	case wifi.Connected:
		return SuccessColor
	case wifi.Connecting:
		return WarningColor
	case wifi.Failed, wifi.Error:
		return ErrorColor
	default:
		return MutedColor
	}
}

// RenderStatusBadge renders a status name with its marker
func RenderStatusBadge(s wifi.Status) string {
	marker := PendingMarker
	switch s {
	case wifi.Connected:
		marker = SuccessMarker
	case wifi.Failed, wifi.Error:
		marker = FailureMarker
	}
	return lipgloss.NewStyle().
		Foreground(StatusColor(s)).
		Bold(true).
		Render(marker + " " + strings.ToUpper(s.String()))
}

// RenderStatus renders an agent snapshot as a panel
func RenderStatus(snap agent.Snapshot, width int) string {
	width = clampWidth(width)

	sections := []string{
		SectionTitleStyle.Render("CONNECTIVITY") + "  " + RenderStatusBadge(snap.Status),
		renderConnectivity(snap.Connectivity),
		"",
		SectionTitleStyle.Render("DELIVERY"),
		renderDelivery(snap.Endpoint, snap.Delivery, width),
	}

	if snap.LastOutcome != nil {
		sections = append(sections, "", SectionTitleStyle.Render("LAST ATTEMPT"), renderOutcome(*snap.LastOutcome))
	}

	sections = append(sections, "",
		SectionTitleStyle.Render("LOOP"),
		row("Cycles", fmt.Sprintf("%d (%d skipped)", snap.Loop.Cycles, snap.Loop.Skipped)),
		row("Delivered", fmt.Sprintf("%d ok, %d failed", snap.Loop.Delivered, snap.Loop.Failed)),
		row("Uptime", formatDuration(snap.Uptime)),
	)

	footer := MutedStyle.Render(fmt.Sprintf("telemetryd %s · %s", snap.Version, snap.At.Local().Format(time.TimeOnly)))
	sections = append(sections, "", footer)

	return BoxStyle(width, StatusColor(snap.Status)).Render(strings.Join(sections, "\n"))
}

func renderConnectivity(st wifi.Stats) string {
	lines := []string{
		row("Retries", fmt.Sprintf("%d/%d", st.RetryCount, st.MaxRetry)),
	}
	if ip := st.IP.String(); ip != "" {
		lines = append(lines, row("Address", ip))
	}
	if st.RSSI != 0 {
		lines = append(lines, row("Signal", fmt.Sprintf("%d dBm", st.RSSI)))
	}
	lines = append(lines, row("Associations", fmt.Sprintf("%d (%d drops)", st.Associations, st.Drops)))
	return strings.Join(lines, "\n")
}

func renderDelivery(endpoint string, st delivery.Stats, width int) string {
	barWidth := min(max(width-30, 10), 40)
	bar := progress.New(
		progress.WithGradient(string(ErrorColor), string(SuccessColor)),
		progress.WithWidth(barWidth),
	)

	lines := []string{
		row("Endpoint", endpoint),
		row("Attempts", fmt.Sprintf("%d", st.TotalAttempts)),
		row("Success rate", bar.ViewAs(st.SuccessRate()/100)),
		row("Failures", fmt.Sprintf("%d timeout, %d network, %d HTTP", st.Timeouts, st.NetworkErrors, st.NonSuccess)),
	}
	if st.PayloadErrors > 0 {
		lines = append(lines, row("Payload errors", fmt.Sprintf("%d", st.PayloadErrors)))
	}
	if st.LastStatusCode != 0 {
		lines = append(lines, row("Last HTTP", fmt.Sprintf("%d", st.LastStatusCode)))
	}
	return strings.Join(lines, "\n")
}

func renderOutcome(o delivery.Outcome) string {
	var result string
	if o.Success {
		result = SuccessTitleStyle.Render(SuccessMarker + " " + o.Result.String())
	} else {
		result = ErrorTitleStyle.Render(FailureMarker + " " + o.Result.String())
	}
	lines := []string{
		row("Result", result),
		row("At", o.At.Local().Format(time.TimeOnly)+" ("+o.Elapsed.Round(time.Millisecond).String()+")"),
	}
	if o.StatusCode != 0 {
		lines = append(lines, row("HTTP status", fmt.Sprintf("%d", o.StatusCode)))
	}
	if o.Truncated {
		lines = append(lines, row("Body", "truncated"))
	}
	if o.Error != "" {
		lines = append(lines, row("Error", o.Error))
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	s, err := sensor.FormatUptime(d)
	if err != nil {
		return d.Round(time.Second).String()
	}
	return s
}
