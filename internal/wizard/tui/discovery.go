package tui

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/telemetryd/internal/discovery"
)

// ScanFunc finds collectors. discovery.Scanner.Scan satisfies it.
type ScanFunc func(ctx context.Context) ([]*discovery.Collector, error)

// Messages for async operations
type scanStartMsg struct{}

type scanCompleteMsg struct {
	collectors []*discovery.Collector
	err        error
}

// endpointChosenMsg tells the app which endpoint the user picked
type endpointChosenMsg struct {
	endpoint string
}

// discoveryKeyMap defines key bindings for the collector list
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Quit},
	}
}

// manualModeKeyMap defines key bindings for manual endpoint entry
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// collectorItem wraps a Collector for use with bubbles/list
type collectorItem struct {
	collector *discovery.Collector
}

// FilterValue implements list.Item
func (c collectorItem) FilterValue() string {
	return c.collector.Instance + " " + c.collector.IP + " " + c.collector.Hostname
}

// Title implements list.DefaultItem
func (c collectorItem) Title() string {
	return c.collector.Instance
}

// Description implements list.DefaultItem
func (c collectorItem) Description() string {
	desc := c.collector.Endpoint()
	if v := c.collector.GetMetadata("version"); v != "" {
		desc += " • v" + v
	}
	return desc
}

// DiscoveryModel is the collector discovery screen
type DiscoveryModel struct {
	Scanning      bool
	CollectorList list.Model
	Err           error

	// Manual endpoint entry state
	ManualMode    bool
	EndpointInput textinput.Model
	InputErr      error

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	ScanTimeout   time.Duration
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap

	scan ScanFunc
	now  func() time.Time
}

// NewDiscoveryModel creates a discovery screen using scan with the given
// timeout.
func NewDiscoveryModel(scan ScanFunc, timeout time.Duration) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "http://collector.local:8080" + discovery.DefaultPath
	input.CharLimit = 256
	input.Width = 50

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	collectors := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	collectors.Title = "Telemetry collectors"
	collectors.SetShowStatusBar(false)
	collectors.SetFilteringEnabled(true)
	collectors.Styles.Title = TitleStyle

	return DiscoveryModel{
		CollectorList: collectors,
		EndpointInput: input,
		Spinner:       s,
		ProgressBar:   bar,
		ScanTimeout:   timeout,
		Help:          help.New(),
		Keys: discoveryKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Enter: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "use collector"),
			),
			Rescan: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "rescan"),
			),
			Manual: key.NewBinding(
				key.WithKeys("m"),
				key.WithHelp("m", "enter URL"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
		ManualKeys: manualModeKeyMap{
			Confirm: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "confirm"),
			),
			Cancel: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "cancel"),
			),
		},
		scan: scan,
		now:  time.Now,
	}
}

// Init starts the first scan
func (m DiscoveryModel) Init() tea.Cmd {
	return m.startScan()
}

func (m DiscoveryModel) startScan() tea.Cmd {
	scan, timeout := m.scan, m.ScanTimeout
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		func() tea.Msg {
			if scan == nil {
				return scanCompleteMsg{}
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
			defer cancel()
			collectors, err := scan(ctx)
			return scanCompleteMsg{collectors: collectors, err: err}
		},
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		return m.updateNormalMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.CollectorList.SetSize(CalculateBoxWidth(msg.Width)-6, max(msg.Height-12, 6))
		return m, nil

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = m.now()
		return m, nil

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.collectors))
		for i, c := range msg.collectors {
			items[i] = collectorItem{collector: c}
		}
		return m, m.CollectorList.SetItems(items)

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.Scanning {
		m.CollectorList, cmd = m.CollectorList.Update(msg)
	}
	return m, cmd
}

// updateNormalMode handles keyboard input in the collector list
func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	// Filtering owns the keyboard until it is applied or cancelled
	if m.CollectorList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.CollectorList, cmd = m.CollectorList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.InputErr = nil
		m.EndpointInput.SetValue("")
		return m, m.EndpointInput.Focus()

	case m.Scanning:
		return m, nil

	case key.Matches(msg, m.Keys.Enter):
		if item, ok := m.CollectorList.SelectedItem().(collectorItem); ok {
			endpoint := item.collector.Endpoint()
			return m, func() tea.Msg { return endpointChosenMsg{endpoint: endpoint} }
		}
		return m, nil

	case key.Matches(msg, m.Keys.Rescan):
		m.Err = nil
		return m, tea.Batch(m.CollectorList.SetItems(nil), m.startScan())
	}

	var cmd tea.Cmd
	m.CollectorList, cmd = m.CollectorList.Update(msg)
	return m, cmd
}

// updateManualMode handles keyboard input in manual endpoint entry mode
func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.EndpointInput.Blur()
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		endpoint, err := ValidateEndpoint(m.EndpointInput.Value())
		if err != nil {
			m.InputErr = err
			return m, nil
		}
		m.ManualMode = false
		m.EndpointInput.Blur()
		return m, func() tea.Msg { return endpointChosenMsg{endpoint: endpoint} }
	}

	var cmd tea.Cmd
	m.EndpointInput, cmd = m.EndpointInput.Update(msg)
	return m, cmd
}

// ValidateEndpoint trims raw and checks it is an http(s) URL with a host.
// A bare host gets http:// and the default ingest path.
func ValidateEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%q is not a valid URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q (use http or https)", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = discovery.DefaultPath
	}
	return u.String(), nil
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning()
		helpText = m.Help.View(m.Keys)
	default:
		content = m.renderResults()
		helpText = m.Help.View(m.Keys)
	}
	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

// renderScanning renders a centered scanning progress display
func (m DiscoveryModel) renderScanning() string {
	elapsed := m.now().Sub(m.ScanStartTime)
	percent := 0.0
	if m.ScanTimeout > 0 {
		percent = min(1, float64(elapsed)/float64(m.ScanTimeout))
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		RenderTitle(m.Spinner.View()+" SEARCHING FOR COLLECTORS"),
		RenderSubtitle("Browsing "+discovery.CollectorService+" on the local network..."),
		"",
		m.ProgressBar.ViewAs(percent),
		"",
		RenderSubtitle(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
		"",
	)
	return lipgloss.Place(CalculateBoxWidth(m.Width)-4, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResults renders the collector list or the empty state
func (m DiscoveryModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Scan failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString("  Press 'm' to enter the collector URL by hand.\n")

	case len(m.CollectorList.Items()) == 0:
		b.WriteString("  " + WarningStyle.Render("⚠ No collectors found on your network"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Ensure the collector is running and advertises " + discovery.CollectorService + "\n")
		b.WriteString("    • mDNS does not cross routers; use the same subnet\n")
		b.WriteString("    • Press 'r' to rescan or 'm' to enter a URL\n")

	default:
		b.WriteString(m.CollectorList.View())
	}
	return b.String()
}

// renderManualEntry renders the manual endpoint dialog
func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString(RenderTitle("Enter the telemetry endpoint"))
	b.WriteString("\n")
	b.WriteString("  URL: ")
	b.WriteString(m.EndpointInput.View())
	b.WriteString("\n\n")
	if m.InputErr != nil {
		b.WriteString(RenderError(m.InputErr.Error()))
		b.WriteString("\n")
	}
	return b.String()
}
