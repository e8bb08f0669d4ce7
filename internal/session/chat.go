package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/stream"
)

// ChatBackend is the part of the dashboard API a chat needs.
type ChatBackend interface {
	ModelInfo(ctx context.Context, name string) (client.ModelInfo, error)
	ChatStream(ctx context.Context, req client.ChatRequest) (io.ReadCloser, error)
}

// SendInput is one user turn.
type SendInput struct {
	Model   string
	Text    string
	Options *client.Options
}

// Chat is a single chat session: a transcript plus the send orchestrator.
type Chat struct {
	backend ChatBackend
	render  func([]Message)
	log     zerolog.Logger

	busy atomic.Bool

	mu       sync.Mutex
	id       string
	messages []Message
}

// NewChat creates an empty session. render may be nil.
func NewChat(backend ChatBackend, render func([]Message), opts ...Option) *Chat {
	o := buildOptions(opts)
	if render == nil {
		render = func([]Message) {}
	}
	return &Chat{
		backend: backend,
		render:  render,
		log:     o.log,
		id:      uuid.NewString(),
	}
}

// ID identifies the current transcript. It changes on Clear.
func (c *Chat) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Busy reports whether a reply is being generated.
func (c *Chat) Busy() bool { return c.busy.Load() }

// Messages returns a snapshot of the transcript.
func (c *Chat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// update applies fn under the lock and renders the resulting snapshot.
func (c *Chat) update(fn func(msgs []Message) []Message) {
	c.mu.Lock()
	c.messages = fn(c.messages)
	snap := slices.Clone(c.messages)
	c.mu.Unlock()
	c.render(snap)
}

// Send appends the user's text and an assistant placeholder, then streams the
// reply into the placeholder. Empty text is ignored. While a reply is being
// generated Send returns ErrBusy without touching the transcript.
//
// Cancelling ctx stops the stream and keeps what was received so far. Any
// other failure replaces the reply with an error line and is also returned.
func (c *Chat) Send(ctx context.Context, in SendInput) error {
	if in.Model == "" {
		return ErrNoModel
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	var history []client.ChatMessage
	c.update(func(msgs []Message) []Message {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: text},
			Message{Role: RoleAssistant},
		)
		history = make([]client.ChatMessage, 0, len(msgs)-1)
		for _, m := range msgs[:len(msgs)-1] {
			history = append(history, client.ChatMessage{Role: m.Role, Content: m.Content})
		}
		return msgs
	})

	req := client.ChatRequest{
		Model:    in.Model,
		Messages: history,
		Options:  in.Options,
		Think:    c.supportsThinking(ctx, in.Model),
	}

	log := c.log.With().Str("model", in.Model).Str("chat", c.ID()).Logger()
	log.Debug().Int("messages", len(history)).Bool("think", req.Think).Msg("sending chat")

	body, err := c.backend.ChatStream(ctx, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer body.Close()

	dec := stream.NewDecoder(body, stream.WithLogger(log))
	for f := range dec.Frames(ctx) {
		c.mu.Lock()
		changed, stop := ReduceChat(c.messages, f)
		snap := slices.Clone(c.messages)
		c.mu.Unlock()
		if changed {
			c.render(snap)
		}
		if stop {
			return fmt.Errorf("chat: %s", f.Error)
		}
	}
	if err := dec.Err(); err != nil {
		return c.fail(ctx, err)
	}
	if n := dec.Dropped(); n > 0 {
		log.Debug().Int("dropped", n).Msg("chat stream had malformed lines")
	}
	return nil
}

// supportsThinking asks whether the model streams reasoning. Any failure
// counts as no.
func (c *Chat) supportsThinking(ctx context.Context, model string) bool {
	info, err := c.backend.ModelInfo(ctx, model)
	if err != nil {
		c.log.Debug().Err(err).Str("model", model).Msg("model info unavailable, not requesting thinking")
		return false
	}
	return info.Has(client.CapabilityThinking)
}

// fail writes err into the placeholder unless the caller cancelled, in which
// case the partial reply is kept.
func (c *Chat) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := err.Error()
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	c.update(func(msgs []Message) []Message {
		if len(msgs) > 0 {
			msgs[len(msgs)-1].Content = ErrorText(msg)
		}
		return msgs
	})
	return err
}

// Clear empties the transcript and starts a new session ID. It returns
// ErrBusy while a reply is being generated.
func (c *Chat) Clear() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	c.id = uuid.NewString()
	c.mu.Unlock()
	c.update(func([]Message) []Message { return nil })
	return nil
}
