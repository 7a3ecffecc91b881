// Package tui is the terminal front end of the relay client: an event form,
// the live connection status and the log of echoes.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/pkg/protocol"
)

const sendTimeout = 5 * time.Second

var errManagerStopped = errors.New("connection manager stopped")

// Manager is the part of client.Manager the display drives.
type Manager interface {
	Connect() error
	Status() protocol.Status
	Send(ctx context.Context, env protocol.Envelope) error
	Events() <-chan client.Event
	Log() *client.EventLog
}

type eventMsg struct {
	event client.Event
}

type eventsClosedMsg struct{}

type connectErrMsg struct {
	err error
}

type field int

const (
	fieldName field = iota
	fieldData
)

// Model is the bubbletea model of the client display.
type Model struct {
	manager  Manager
	composer *client.Composer

	name     textinput.Model
	data     textinput.Model
	focus    field
	log      viewport.Model
	spinner  spinner.Model
	status   protocol.Status
	lastErr  error
	width    int
	quitting bool
}

// New creates the display for manager. It connects on start.
func New(manager Manager) Model {
	name := textinput.New()
	name.Placeholder = "Event Name"
	name.Prompt = "Event Name  › "
	name.Focus()

	data := textinput.New()
	data.Placeholder = "Event Data (string or JSON)"
	data.Prompt = "Event Data  › "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	m := Model{
		manager:  manager,
		composer: client.NewComposer(manager),
		name:     name,
		data:     data,
		log:      viewport.New(defaultWidth, defaultLogHeight),
		spinner:  sp,
		status:   protocol.StatusClosed,
		width:    defaultWidth,
	}
	m.log.SetContent(m.renderEntries())
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.connect(),
		waitForEvent(m.manager.Events()),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.log.Width = msg.Width
		m.log.Height = max(msg.Height-chromeHeight, minLogHeight)
		m.log.SetContent(m.renderEntries())
		m.log.GotoBottom()
		return m, nil

	case eventMsg:
		m = m.applyEvent(msg.event)
		return m, waitForEvent(m.manager.Events())

	case eventsClosedMsg:
		m.status = protocol.StatusClosed
		m.lastErr = errManagerStopped
		return m, nil

	case connectErrMsg:
		m.lastErr = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateInputs(msg)
}

func (m Model) updateKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "ctrl+r":
		if m.status == protocol.StatusOpen {
			return m, nil
		}
		return m, m.connect()

	case "tab", "shift+tab", "up", "down":
		return m.toggleFocus(), nil

	case "enter":
		return m.submit(), nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(k)
		return m, cmd
	}

	return m.updateInputs(k)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var nameCmd, dataCmd tea.Cmd
	m.name, nameCmd = m.name.Update(msg)
	m.data, dataCmd = m.data.Update(msg)
	return m, tea.Batch(nameCmd, dataCmd)
}

func (m Model) toggleFocus() Model {
	if m.focus == fieldName {
		m.focus = fieldData
		m.name.Blur()
		m.data.Focus()
	} else {
		m.focus = fieldName
		m.data.Blur()
		m.name.Focus()
	}
	return m
}

// canSubmit mirrors the disabled state of the send action.
func (m Model) canSubmit() bool {
	return m.status == protocol.StatusOpen && m.name.Value() != ""
}

func (m Model) submit() Model {
	if !m.canSubmit() {
		return m
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := m.composer.Submit(ctx, m.name.Value(), m.data.Value()); err != nil {
		m.lastErr = err
		return m
	}

	m.lastErr = nil
	m.name.Reset()
	m.data.Reset()
	if m.focus != fieldName {
		m = m.toggleFocus()
	}
	return m
}

func (m Model) applyEvent(ev client.Event) Model {
	switch ev := ev.(type) {
	case client.StatusEvent:
		// events of a replaced connection may arrive late; the manager
		// knows the current state
		m.status = m.manager.Status()
		if ev.Status == protocol.StatusClosed && ev.Err != nil {
			m.lastErr = ev.Err
		}
		if ev.Status == protocol.StatusOpen {
			m.lastErr = nil
		}

	case client.EchoEvent:
		// the manager appends to its log before publishing the echo
		m.log.SetContent(m.renderEntries())
		m.log.GotoBottom()
	}
	return m
}

func (m Model) connect() tea.Cmd {
	manager := m.manager
	return func() tea.Msg {
		if err := manager.Connect(); err != nil {
			return connectErrMsg{err: err}
		}
		return nil
	}
}

func waitForEvent(events <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}
