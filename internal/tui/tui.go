// Package tui is the terminal rendering adapter of the dashboard. It shows the
// overview, the installed models with pull/update/delete, and a chat, all
// driven by the dashboard and session orchestrators.
//
// Orchestrators run in tea.Cmd goroutines. Their render callbacks forward
// snapshots through a channel that the program drains with listen, so the
// model only ever changes inside Update.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/dashboard"
	"github.com/bitdruid/llmm/internal/session"
	"github.com/bitdruid/llmm/internal/view"
)

const (
	updateBuffer   = 64
	reconnectDelay = 5 * time.Second
)

// Backend is everything the TUI asks of the dashboard API.
type Backend interface {
	dashboard.Source
	session.ChatBackend
	session.PullBackend
	session.DeleteBackend
}

// EventStream is a live event subscription.
type EventStream interface {
	Receive() (client.Event, error)
	RequestRefresh() error
	Close() error
}

// Options configures the TUI.
type Options struct {
	Backend Backend
	// Events opens the server event socket. Nil disables live updates.
	Events func(ctx context.Context) (EventStream, error)
	Theme  view.Theme
	// SaveTheme persists a theme change. Nil keeps it for the session only.
	SaveTheme func(view.Theme) error
	// Generation is sent with every chat turn.
	Generation *client.Options

	RunningInterval time.Duration
	TotalsInterval  time.Duration

	Logger zerolog.Logger
}

type tab int

const (
	tabDashboard tab = iota
	tabModels
	tabChat
)

var tabNames = []string{"Dashboard", "Models", "Chat"}

// Model is the bubbletea model of the TUI.
type Model struct {
	ctx     context.Context
	stop    context.CancelFunc
	updates chan tea.Msg
	log     zerolog.Logger

	backend   Backend
	events    func(ctx context.Context) (EventStream, error)
	saveTheme func(view.Theme) error

	dash   *dashboard.Dashboard
	chat   *session.Chat
	puller *session.Puller
	md     *view.Markdown

	tab    tab
	theme  view.Theme
	styles view.Styles
	keys   keyMap
	width  int
	height int

	snap     dashboard.Snapshot
	messages []session.Message
	pull     session.PullState

	selected   int
	chatModel  string
	genOpts    *client.Options
	confirming string
	cancelChat context.CancelFunc
	stream     EventStream
	live       bool
	status     string
	statusErr  bool

	input     textinput.Model
	pullInput textinput.Model
	viewport  viewport.Model
	progress  progress.Model
	help      help.Model
}

// New builds the model. Nothing is fetched until Run starts polling.
func New(ctx context.Context, opts Options) Model {
	ctx, stop := context.WithCancel(ctx)
	theme := opts.Theme
	if theme == "" {
		theme = view.ThemeLight
	}

	m := Model{
		ctx:       ctx,
		stop:      stop,
		updates:   make(chan tea.Msg, updateBuffer),
		log:       opts.Logger,
		backend:   opts.Backend,
		events:    opts.Events,
		saveTheme: opts.SaveTheme,
		genOpts:   opts.Generation,
		md:        view.NewMarkdown(),
		theme:     theme,
		styles:    view.StylesFor(theme),
		keys:      defaultKeys(),
		width:     80,
		height:    24,
		help:      help.New(),
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	s := sink{ch: m.updates, done: ctx.Done()}

	sopts := []session.Option{session.WithLogger(opts.Logger)}
	m.dash = dashboard.New(opts.Backend, func(snap dashboard.Snapshot) { s.send(snapshotMsg(snap)) },
		dashboard.WithIntervals(opts.RunningInterval, opts.TotalsInterval),
		dashboard.WithLogger(opts.Logger))
	m.chat = session.NewChat(opts.Backend, func(msgs []session.Message) { s.send(chatMsg(msgs)) }, sopts...)
	m.puller = session.NewPuller(opts.Backend, func(st session.PullState) { s.send(pullMsg(st)) }, sopts...)

	m.input = textinput.New()
	m.input.Placeholder = "Type a message"
	m.input.Prompt = "> "
	m.input.CharLimit = 0

	m.pullInput = textinput.New()
	m.pullInput.Placeholder = "model name, e.g. llama3:8b"
	m.pullInput.Prompt = "pull: "

	m.viewport = viewport.New(m.width, m.chatHeight())
	m.resize()
	return m
}

// Run starts polling, runs the program until the user quits or ctx ends, and
// stops everything it started.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	defer m.stop()

	m.dash.Start(m.ctx)
	defer m.dash.Stop()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}

// sink forwards render snapshots into the program until it shuts down.
type sink struct {
	ch   chan<- tea.Msg
	done <-chan struct{}
}

func (s sink) send(msg tea.Msg) {
	select {
	case s.ch <- msg:
	case <-s.done:
	}
}

func (m Model) send(msg tea.Msg) {
	sink{ch: m.updates, done: m.ctx.Done()}.send(msg)
}

// listen waits for the next forwarded snapshot.
func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.updates:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.subscribe())
}
