package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/statusapi"
)

// maxEventLines is the length of the recent-events list
const maxEventLines = 8

// Messages
type streamEventMsg statusapi.Event

type streamClosedMsg struct {
	err error
}

// watchKeyMap defines key bindings for the live view
type watchKeyMap struct {
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Help, k.Quit}}
}

// WatchModel is the live status view fed by a status stream
type WatchModel struct {
	Source string

	events <-chan statusapi.Event
	done   <-chan error

	Snapshot *agent.Snapshot
	Recent   []string
	Closed   bool
	Err      error

	Width   int
	Spinner spinner.Model
	Help    help.Model
	Keys    watchKeyMap
}

// NewWatchModel creates a live view. events is closed when the stream ends,
// after the stream's error (or nil) has been sent on done.
func NewWatchModel(source string, events <-chan statusapi.Event, done <-chan error) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		Source:  source,
		events:  events,
		done:    done,
		Width:   GetTerminalWidth(),
		Spinner: s,
		Help:    help.New(),
		Keys: watchKeyMap{
			Clear: key.NewBinding(
				key.WithKeys("c"),
				key.WithHelp("c", "clear events"),
			),
			Help: key.NewBinding(
				key.WithKeys("?"),
				key.WithHelp("?", "toggle help"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, m.waitForEvent)
}

func (m WatchModel) waitForEvent() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		var err error
		if m.done != nil {
			err = <-m.done
		}
		return streamClosedMsg{err: err}
	}
	return streamEventMsg(ev)
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Clear):
			m.Recent = nil
		case key.Matches(msg, m.Keys.Help):
			m.Help.ShowAll = !m.Help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Help.Width = msg.Width
		return m, nil

	case streamEventMsg:
		m.apply(statusapi.Event(msg))
		return m, m.waitForEvent

	case streamClosedMsg:
		m.Closed = true
		m.Err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.Snapshot != nil || m.Closed {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one stream event into the local snapshot
func (m *WatchModel) apply(ev statusapi.Event) {
	switch ev.Type {
	case statusapi.EventSnapshot:
		if ev.Snapshot != nil {
			snap := *ev.Snapshot
			m.Snapshot = &snap
		}
	case statusapi.EventTransition:
		if ev.Transition == nil {
			return
		}
		t := *ev.Transition
		if m.Snapshot != nil {
			m.Snapshot.Status = t.To
			m.Snapshot.Connectivity.Status = t.To
			m.Snapshot.Connectivity.RetryCount = t.Retry
			m.Snapshot.At = t.At
		}
		line := fmt.Sprintf("%s  %s → %s", t.At.Local().Format(time.TimeOnly), t.From, t.To)
		if t.Reason != "" {
			line += " (" + t.Reason + ")"
		}
		m.push(line)
	case statusapi.EventDelivery:
		if ev.Delivery == nil {
			return
		}
		o := *ev.Delivery
		if m.Snapshot != nil {
			m.Snapshot.Delivery.Record(o)
			m.Snapshot.LastOutcome = &o
			m.Snapshot.At = o.At
		}
		line := fmt.Sprintf("%s  delivery %s", o.At.Local().Format(time.TimeOnly), o.Result)
		if o.StatusCode != 0 {
			line += fmt.Sprintf(" HTTP %d", o.StatusCode)
		}
		m.push(line)
	}
}

func (m *WatchModel) push(line string) {
	m.Recent = append(m.Recent, line)
	if len(m.Recent) > maxEventLines {
		m.Recent = m.Recent[len(m.Recent)-maxEventLines:]
	}
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(NewHeader("Live status", "telemetryd watch", Param{Key: "Agent", Value: m.Source}).SetWidth(m.Width).Render())
	b.WriteString("\n\n")

	switch {
	case m.Snapshot != nil:
		b.WriteString(RenderStatus(*m.Snapshot, m.Width))
	case m.Closed:
		// Nothing received before the stream ended
	default:
		b.WriteString("  " + m.Spinner.View() + " Waiting for status stream...")
	}
	b.WriteString("\n\n")

	b.WriteString(SectionTitleStyle.Render("  RECENT EVENTS"))
	b.WriteString("\n")
	if len(m.Recent) == 0 {
		b.WriteString(MutedStyle.Render("  none yet"))
		b.WriteString("\n")
	}
	for _, line := range m.Recent {
		b.WriteString("  " + line + "\n")
	}

	if m.Closed {
		b.WriteString("\n")
		if m.Err != nil {
			b.WriteString(ErrorMessageStyle.Render("  Stream ended: " + m.Err.Error()))
		} else {
			b.WriteString(MutedStyle.Render("  Stream ended"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.Help.View(m.Keys))
	b.WriteString("\n")
	return b.String()
}
