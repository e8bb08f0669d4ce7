// Package session holds the client-side state of a dashboard: the chat
// transcript and the pull progress record, the reducers that apply stream
// frames to them, and the orchestrators that drive one user action from
// request to final state.
//
// Each orchestrator owns a busy guard. While an action is in flight a second
// one is rejected with ErrBusy and leaves the state untouched. Render
// callbacks run on the orchestrator's goroutine after every mutation and
// receive a snapshot that is safe to keep.
package session

import (
	"errors"

	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned when an action is requested while another one of
	// the same kind is still in flight.
	ErrBusy = errors.New("session: operation already in progress")
	// ErrNoModel is returned when no model was selected or entered.
	ErrNoModel = errors.New("session: no model selected")
	// ErrDeclined is returned by Delete when the confirmation was refused.
	ErrDeclined = errors.New("session: cancelled by user")
)

// User-facing status texts.
const (
	MsgEnterModelName = "Please enter a model name"
	MsgStartingPull   = "Starting pull..."
	MsgStartingUpdate = "Starting update..."
)

// ErrorText formats a terminal failure the way it is shown in place of a
// reply or a status line.
func ErrorText(msg string) string {
	return "Error: " + msg
}

type options struct {
	log zerolog.Logger
}

// Option configures an orchestrator.
type Option func(*options)

// WithLogger installs a logger for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
