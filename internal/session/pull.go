package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/stream"
)

// PullBackend is the part of the dashboard API a pull needs.
type PullBackend interface {
	PullStream(ctx context.Context, name string) (io.ReadCloser, error)
	UpdateStream(ctx context.Context, name string) (io.ReadCloser, error)
}

// Puller runs at most one pull or update at a time and keeps its progress.
type Puller struct {
	backend PullBackend
	render  func(PullState)
	log     zerolog.Logger

	busy atomic.Bool

	mu    sync.Mutex
	state PullState
}

// NewPuller creates an idle puller. render may be nil.
func NewPuller(backend PullBackend, render func(PullState), opts ...Option) *Puller {
	o := buildOptions(opts)
	if render == nil {
		render = func(PullState) {}
	}
	return &Puller{backend: backend, render: render, log: o.log}
}

// State returns the current progress record.
func (p *Puller) State() PullState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a pull is in flight.
func (p *Puller) Busy() bool { return p.busy.Load() }

func (p *Puller) set(s PullState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.render(s)
}

// Pull downloads a model, reporting progress through the render callback.
func (p *Puller) Pull(ctx context.Context, name string) error {
	return p.run(ctx, name, p.backend.PullStream, MsgStartingPull, "pulled")
}

// Update re-pulls an installed model to fetch its latest version.
func (p *Puller) Update(ctx context.Context, name string) error {
	return p.run(ctx, name, p.backend.UpdateStream, MsgStartingUpdate, "updated")
}

func (p *Puller) run(ctx context.Context, name string, open func(context.Context, string) (io.ReadCloser, error), starting, verb string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		if p.busy.Load() {
			return ErrBusy
		}
		p.set(PullState{Phase: PhaseFailed, Status: MsgEnterModelName, Error: MsgEnterModelName})
		return ErrNoModel
	}
	if !p.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer p.busy.Store(false)

	log := p.log.With().Str("model", name).Str("action", verb).Logger()
	start := time.Now()

	state := PullState{Phase: PhaseRunning, Model: name, Status: starting}
	p.set(state)

	body, err := open(ctx, name)
	if err != nil {
		return p.fail(state, err)
	}
	defer body.Close()

	dec := stream.NewDecoder(body, stream.WithLogger(log))
	for f := range dec.Frames(ctx) {
		state = ReducePull(state, f)
		p.set(state)
		if state.Phase == PhaseFailed {
			log.Debug().Str("error", state.Error).Msg("pull failed")
			return fmt.Errorf("pull %s: %s", name, state.Error)
		}
	}
	if err := dec.Err(); err != nil {
		return p.fail(state, err)
	}

	state.Phase = PhaseSucceeded
	state.Error = ""
	state.Status = fmt.Sprintf("Model \"%s\" %s successfully!", name, verb)
	p.set(state)
	log.Debug().Dur("took", time.Since(start)).Int("dropped", dec.Dropped()).Msg("pull finished")
	return nil
}

func (p *Puller) fail(state PullState, err error) error {
	msg := err.Error()
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	state.Phase = PhaseFailed
	state.Error = msg
	p.set(state)
	return err
}
