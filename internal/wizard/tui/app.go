package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/telemetryd/internal/config"
)

// ErrCancelled is returned by Run when the user quits before confirming.
var ErrCancelled = errors.New("setup cancelled")

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenForm      Screen = "form"
	ScreenReview    Screen = "review"
)

// reviewKeyMap defines key bindings for the review screen
type reviewKeyMap struct {
	Save key.Binding
	Edit key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k reviewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Save, k.Edit, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k reviewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Save, k.Edit, k.Quit}}
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	DiscoveryModel DiscoveryModel
	FormModel      FormModel

	Base      *config.Config
	Result    *config.Config
	Confirmed bool
	Path      string // where the caller will save, shown on review

	Width  int
	Height int

	Help       help.Model
	ReviewKeys reviewKeyMap
}

// NewAppModel creates the wizard starting at discovery
func NewAppModel(base *config.Config, path string, scan ScanFunc, scanTimeout time.Duration) AppModel {
	return AppModel{
		CurrentScreen:  ScreenDiscovery,
		DiscoveryModel: NewDiscoveryModel(scan, scanTimeout),
		Base:           base,
		Path:           path,
		Help:           help.New(),
		ReviewKeys: reviewKeyMap{
			Save: key.NewBinding(
				key.WithKeys("enter", "s"),
				key.WithHelp("enter", "save"),
			),
			Edit: key.NewBinding(
				key.WithKeys("e", "esc"),
				key.WithHelp("e", "edit"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q"),
				key.WithHelp("q", "quit without saving"),
			),
		},
	}
}

// Init initializes the application
func (m AppModel) Init() tea.Cmd {
	return m.DiscoveryModel.Init()
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DiscoveryModel, _ = m.DiscoveryModel.Update(msg)
		m.FormModel, _ = m.FormModel.Update(msg)
		return m, nil

	case tea.KeyMsg:
		// Global quit handler
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case scanStartMsg, scanCompleteMsg:
		// Scans finish even if the user moved on
		m.DiscoveryModel, cmd = m.DiscoveryModel.Update(msg)
		return m, cmd

	case endpointChosenMsg:
		m.FormModel = NewFormModel(m.Base, msg.endpoint)
		m.FormModel.Width, m.FormModel.Height = m.Width, m.Height
		m.CurrentScreen = ScreenForm
		return m, m.FormModel.Init()

	case formBackMsg:
		m.CurrentScreen = ScreenDiscovery
		return m, nil

	case formSubmittedMsg:
		m.Result = msg.cfg
		m.CurrentScreen = ScreenReview
		return m, nil
	}

	switch m.CurrentScreen {
	case ScreenDiscovery:
		m.DiscoveryModel, cmd = m.DiscoveryModel.Update(msg)
	case ScreenForm:
		m.FormModel, cmd = m.FormModel.Update(msg)
	case ScreenReview:
		return m.updateReview(msg)
	}
	return m, cmd
}

func (m AppModel) updateReview(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.ReviewKeys.Save):
		m.Confirmed = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.ReviewKeys.Edit):
		m.CurrentScreen = ScreenForm
		return m, nil
	case key.Matches(keyMsg, m.ReviewKeys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenForm:
		return m.FormModel.View()
	case ScreenReview:
		return RenderApplicationContainer(m.renderReview(), m.Help.View(m.ReviewKeys), m.Width, m.Height)
	default:
		return m.DiscoveryModel.View()
	}
}

func (m AppModel) renderReview() string {
	if m.Result == nil {
		return ""
	}
	c := m.Result

	rows := [][2]string{
		{"Endpoint", c.API.Endpoint},
		{"SSID", c.WiFi.SSID},
		{"Driver", c.WiFi.Driver},
	}
	if c.WiFi.Interface != "" {
		rows = append(rows, [2]string{"Interface", c.WiFi.Interface})
	}
	rows = append(rows,
		[2]string{"Interval", c.Transmission.Interval.String()},
		[2]string{"Max retry", fmt.Sprintf("%d", c.WiFi.MaxRetry)},
	)

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(LabelStyle.Render(r[0]) + " " + r[1] + "\n")
	}

	var out strings.Builder
	out.WriteString(RenderTitle("Review"))
	out.WriteString("\n")
	out.WriteString(InfoBoxStyle.Render(strings.TrimSuffix(b.String(), "\n")))
	out.WriteString("\n\n")
	if m.Path != "" {
		out.WriteString(RenderSubtitle("  Will be written to " + m.Path))
		out.WriteString("\n")
	}
	return out.String()
}

// Run shows the wizard and returns the confirmed configuration.
func Run(base *config.Config, path string, scan ScanFunc, scanTimeout time.Duration) (*config.Config, error) {
	final, err := tea.NewProgram(NewAppModel(base, path, scan, scanTimeout), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, fmt.Errorf("setup wizard failed: %w", err)
	}
	m, ok := final.(AppModel)
	if !ok || !m.Confirmed || m.Result == nil {
		return nil, ErrCancelled
	}
	return m.Result, nil
}
