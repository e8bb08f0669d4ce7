package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/dashboard"
	"github.com/bitdruid/llmm/internal/session"
	"github.com/bitdruid/llmm/internal/view"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.applySnapshot(dashboard.Snapshot(msg))
		return m, m.listen()

	case chatMsg:
		m.messages = msg
		m.refreshTranscript()
		return m, m.listen()

	case pullMsg:
		m.pull = session.PullState(msg)
		return m, m.listen()

	case eventMsg:
		dash, ctx, ev := m.dash, m.ctx, client.Event(msg)
		return m, tea.Batch(m.listen(), func() tea.Msg {
			dash.HandleEvent(ctx, ev)
			return nil
		})

	case eventsClosedMsg:
		m.stream, m.live = nil, false
		return m, tea.Batch(m.listen(), m.reconnect(msg.err))

	case eventsDownMsg:
		m.live = false
		return m, m.reconnect(msg.err)

	case eventsUpMsg:
		m.stream, m.live = msg.stream, true
		return m, nil

	case reconnectMsg:
		return m, m.subscribe()

	case chatDoneMsg:
		m.cancelChat = nil
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, context.Canceled):
			m.setStatus("Generation stopped", false)
		case errors.Is(msg.err, session.ErrNoModel):
			m.setStatus("Select a model on the Models tab", true)
		case errors.Is(msg.err, session.ErrBusy):
			m.setStatus("A reply is still being generated", true)
		default:
			m.log.Debug().Err(msg.err).Msg("chat failed")
		}
		return m, nil

	case pullDoneMsg:
		switch {
		case msg.err == nil:
			return m, m.refresh()
		case errors.Is(msg.err, session.ErrBusy):
			m.setStatus("A pull is already running", true)
		default:
			m.log.Debug().Err(msg.err).Str("model", msg.name).Msg("pull failed")
		}
		return m, nil

	case deleteDoneMsg:
		if msg.err != nil {
			m.setStatus(errorText(msg.err), true)
			return m, nil
		}
		m.setStatus(msg.res.Message, false)
		if m.chatModel == msg.name {
			m.chatModel = ""
		}
		return m, m.refresh()

	case themeSavedMsg:
		if msg.err != nil {
			m.setStatus("Theme not saved: "+msg.err.Error(), true)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.confirming != "" {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			name := m.confirming
			m.confirming = ""
			m.setStatus(fmt.Sprintf("Deleting %s...", name), false)
			return m, m.deleteModel(name)
		case key.Matches(msg, m.keys.Decline):
			m.confirming = ""
			m.setStatus("Delete cancelled", false)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.NextTab):
		return m.switchTab((m.tab + 1) % tab(len(tabNames)))
	case key.Matches(msg, m.keys.PrevTab):
		return m.switchTab((m.tab + tab(len(tabNames)) - 1) % tab(len(tabNames)))
	}

	switch {
	case m.tab == tabChat:
		return m.handleChatKey(msg)
	case m.tab == tabModels && m.pullInput.Focused():
		return m.handlePullInputKey(msg)
	case m.tab == tabModels:
		if next, cmd, ok := m.handleModelsKey(msg); ok {
			return next, cmd
		}
	}
	return m.handleGlobalKey(msg)
}

// handleGlobalKey handles the single-letter keys of tabs without a focused
// text input.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Theme):
		return m.toggleTheme()
	case key.Matches(msg, m.keys.Refresh):
		m.setStatus("Refreshing...", false)
		return m, m.refresh()
	}
	switch msg.String() {
	case "1":
		return m.switchTab(tabDashboard)
	case "2":
		return m.switchTab(tabModels)
	case "3":
		return m.switchTab(tabChat)
	}
	return m, nil
}

func (m Model) handleModelsKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.snap.Models)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Select):
		name := m.selectedModel()
		if name == "" {
			return m, nil, true
		}
		m.chatModel = name
		next, cmd := m.switchTab(tabChat)
		return next.(Model), cmd, true
	case key.Matches(msg, m.keys.Pull):
		m.setStatus("", false)
		cmd := m.pullInput.Focus()
		return m, cmd, true
	case key.Matches(msg, m.keys.Update):
		name := m.selectedModel()
		if name == "" {
			return m, nil, true
		}
		return m, m.pullModel(name, true), true
	case key.Matches(msg, m.keys.Delete):
		if name := m.selectedModel(); name != "" {
			m.confirming = name
		}
	default:
		return m, nil, false
	}
	return m, nil, true
}

func (m Model) handlePullInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		name := m.pullInput.Value()
		m.pullInput.Reset()
		m.pullInput.Blur()
		return m, m.pullModel(name, false)
	case tea.KeyEsc:
		m.pullInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.pullInput, cmd = m.pullInput.Update(msg)
	return m, cmd
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Send):
		return m.sendChat()
	case key.Matches(msg, m.keys.Stop):
		if m.cancelChat != nil {
			m.cancelChat()
		}
		return m, nil
	case key.Matches(msg, m.keys.Clear):
		if err := m.chat.Clear(); err != nil {
			m.setStatus("A reply is still being generated", true)
		} else {
			m.setStatus("", false)
		}
		return m, nil
	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDn):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.cancelChat != nil {
		m.cancelChat()
	}
	return m, tea.Quit
}

func (m Model) switchTab(t tab) (tea.Model, tea.Cmd) {
	m.tab = t
	m.pullInput.Blur()
	if t == tabChat {
		cmd := m.input.Focus()
		return m, cmd
	}
	m.input.Blur()
	return m, nil
}

func (m Model) toggleTheme() (tea.Model, tea.Cmd) {
	m.theme = m.theme.Toggle()
	m.styles = view.StylesFor(m.theme)
	m.refreshTranscript()
	m.setStatus(fmt.Sprintf("Theme: %s", m.theme), false)

	save, theme := m.saveTheme, m.theme
	if save == nil {
		return m, nil
	}
	return m, func() tea.Msg { return themeSavedMsg{err: save(theme)} }
}

// sendChat starts one chat turn. The trigger is ignored while a reply is
// being generated.
func (m Model) sendChat() (tea.Model, tea.Cmd) {
	if m.cancelChat != nil || m.chat.Busy() {
		return m, nil
	}
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if m.chatModel == "" {
		m.setStatus("Select a model on the Models tab", true)
		return m, nil
	}
	m.input.Reset()
	m.setStatus("", false)

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelChat = cancel
	chat, in := m.chat, session.SendInput{Model: m.chatModel, Text: text, Options: m.genOpts}
	return m, func() tea.Msg {
		defer cancel()
		return chatDoneMsg{err: chat.Send(ctx, in)}
	}
}

func (m Model) pullModel(name string, update bool) tea.Cmd {
	p, ctx := m.puller, m.ctx
	return func() tea.Msg {
		var err error
		if update {
			err = p.Update(ctx, name)
		} else {
			err = p.Pull(ctx, name)
		}
		return pullDoneMsg{name: name, err: err}
	}
}

func (m Model) deleteModel(name string) tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		res, err := session.Delete(ctx, backend, name, nil)
		return deleteDoneMsg{name: name, res: res, err: err}
	}
}

// refresh asks the server to broadcast a model update to every client, or
// refreshes locally when there is no live event socket.
func (m Model) refresh() tea.Cmd {
	stream, dash, ctx, log := m.stream, m.dash, m.ctx, m.log
	return func() tea.Msg {
		if stream != nil && stream.RequestRefresh() == nil {
			return nil
		}
		if err := dash.RefreshAll(ctx); err != nil {
			log.Debug().Err(err).Msg("refresh failed")
		}
		return nil
	}
}

func (m Model) subscribe() tea.Cmd {
	if m.events == nil {
		return nil
	}
	open, ctx := m.events, m.ctx
	return func() tea.Msg {
		es, err := open(ctx)
		if err != nil {
			return eventsDownMsg{err: err}
		}
		go m.pump(es)
		return eventsUpMsg{stream: es}
	}
}

func (m Model) pump(es EventStream) {
	defer es.Close()
	for {
		ev, err := es.Receive()
		if err != nil {
			m.send(eventsClosedMsg{err: err})
			return
		}
		m.send(eventMsg(ev))
	}
}

func (m Model) reconnect(err error) tea.Cmd {
	if m.ctx.Err() != nil {
		return nil
	}
	m.log.Debug().Err(err).Dur("retry_in", reconnectDelay).Msg("event socket unavailable")
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })
}

func (m *Model) applySnapshot(s dashboard.Snapshot) {
	m.snap = s
	if m.selected >= len(s.Models) {
		m.selected = max(len(s.Models)-1, 0)
	}
	if m.chatModel == "" && len(s.Models) > 0 {
		m.chatModel = s.Models[0].Name
	}
}

func (m Model) selectedModel() string {
	if m.selected < 0 || m.selected >= len(m.snap.Models) {
		return ""
	}
	return m.snap.Models[m.selected].Name
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status, m.statusErr = text, isErr
}

func (m *Model) resize() {
	m.input.Width = max(m.width-6, 10)
	m.pullInput.Width = max(m.width-10, 10)
	m.viewport.Width = m.width
	m.viewport.Height = m.chatHeight()
	m.progress.Width = max(min(m.width-4, 60), 10)
	m.help.Width = m.width
}

// chatHeight leaves room for the header, model line, input, status and help.
func (m Model) chatHeight() int {
	return max(m.height-8, 3)
}

func errorText(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return session.ErrorText(apiErr.Message)
	}
	return session.ErrorText(err.Error())
}
