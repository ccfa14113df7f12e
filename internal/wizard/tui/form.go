package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/telemetryd/internal/config"
)

// Form field indexes
const (
	fieldSSID = iota
	fieldDriver
	fieldInterface
	fieldInterval
	fieldCount
)

var fieldLabels = [fieldCount]string{"SSID", "Driver", "Interface", "Interval"}

// formSubmittedMsg carries the validated configuration to the app
type formSubmittedMsg struct {
	cfg *config.Config
}

// formBackMsg returns to discovery
type formBackMsg struct{}

// formKeyMap defines key bindings for the settings form
type formKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
	Back   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k formKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Submit, k.Back}
}

// FullHelp returns keybindings for the expanded help view
func (k formKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev}, {k.Submit, k.Back}}
}

// FormModel edits the WiFi and schedule settings
type FormModel struct {
	Endpoint string
	Inputs   []textinput.Model
	Focus    int
	Err      error

	Width  int
	Height int
	Help   help.Model
	Keys   formKeyMap

	base *config.Config
}

// NewFormModel creates the settings form prefilled from base. The endpoint
// was chosen on the discovery screen.
func NewFormModel(base *config.Config, endpoint string) FormModel {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Width = 40
		in.CharLimit = 64
		inputs[i] = in
	}

	inputs[fieldSSID].Placeholder = "network name"
	inputs[fieldSSID].CharLimit = 32 // 802.11 SSID limit
	inputs[fieldSSID].SetValue(base.WiFi.SSID)

	inputs[fieldDriver].Placeholder = "sim or hostif"
	inputs[fieldDriver].SetValue(base.WiFi.Driver)

	inputs[fieldInterface].Placeholder = "wlan0 (hostif only)"
	inputs[fieldInterface].SetValue(base.WiFi.Interface)

	inputs[fieldInterval].Placeholder = "30s"
	inputs[fieldInterval].SetValue(base.Transmission.Interval.String())

	inputs[fieldSSID].Focus()

	return FormModel{
		Endpoint: endpoint,
		Inputs:   inputs,
		Help:     help.New(),
		Keys: formKeyMap{
			Next: key.NewBinding(
				key.WithKeys("tab", "down"),
				key.WithHelp("tab", "next field"),
			),
			Prev: key.NewBinding(
				key.WithKeys("shift+tab", "up"),
				key.WithHelp("shift+tab", "previous"),
			),
			Submit: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "next/review"),
			),
			Back: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "back"),
			),
		},
		base: base,
	}
}

// Init implements tea.Model
func (m FormModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model
func (m FormModel) Update(msg tea.Msg) (FormModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Back):
			return m, func() tea.Msg { return formBackMsg{} }

		case key.Matches(msg, m.Keys.Next):
			return m, m.setFocus(m.Focus + 1)

		case key.Matches(msg, m.Keys.Prev):
			return m, m.setFocus(m.Focus - 1)

		case key.Matches(msg, m.Keys.Submit):
			if m.Focus < fieldCount-1 {
				return m, m.setFocus(m.Focus + 1)
			}
			cfg, err := m.Build()
			if err != nil {
				m.Err = err
				return m, nil
			}
			m.Err = nil
			return m, func() tea.Msg { return formSubmittedMsg{cfg: cfg} }
		}
	}

	var cmd tea.Cmd
	m.Inputs[m.Focus], cmd = m.Inputs[m.Focus].Update(msg)
	return m, cmd
}

// setFocus moves focus to field i, wrapping around
func (m *FormModel) setFocus(i int) tea.Cmd {
	i = (i + fieldCount) % fieldCount
	m.Inputs[m.Focus].Blur()
	m.Focus = i
	return m.Inputs[i].Focus()
}

// Build applies the form to a copy of the base configuration and validates
// the result.
func (m FormModel) Build() (*config.Config, error) {
	cfg := *m.base
	cfg.API.Endpoint = m.Endpoint
	cfg.API.Discover = false

	cfg.WiFi.SSID = strings.TrimSpace(m.Inputs[fieldSSID].Value())
	cfg.WiFi.Driver = strings.TrimSpace(m.Inputs[fieldDriver].Value())
	cfg.WiFi.Interface = strings.TrimSpace(m.Inputs[fieldInterface].Value())

	raw := strings.TrimSpace(m.Inputs[fieldInterval].Value())
	interval, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("interval %q: use a duration such as 30s or 1m", raw)
	}
	cfg.Transmission.Interval = interval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// View renders the form
func (m FormModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Station settings"))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Endpoint"))
	b.WriteString(" " + m.Endpoint + "\n\n")

	for i, in := range m.Inputs {
		label := LabelStyle
		if i == m.Focus {
			label = FocusedLabelStyle
		}
		b.WriteString(label.Render(fieldLabels[i]))
		b.WriteString(" " + in.View() + "\n")
	}

	b.WriteString("\n")
	b.WriteString(RenderSubtitle("  The WiFi password is never saved. Export " + config.PasswordEnvVar + " before \"telemetryd run\"."))
	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString("\n")
		b.WriteString(RenderError(m.Err.Error()))
		b.WriteString("\n")
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}
