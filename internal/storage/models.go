package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Actions recorded in the history table.
const (
	ActionPull     = "pull"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionChat     = "chat"
	ActionGenerate = "generate"
)

// Outcome of a recorded action.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry is one model-management action performed through the dashboard API.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Action    string    `json:"action" yaml:"action"`
	Model     string    `json:"model" yaml:"model"`
	Status    string    `json:"status" yaml:"status"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	// DurationMS is how long the upstream call took, in milliseconds.
	DurationMS int64 `json:"duration_ms" yaml:"duration_ms"`
}

// HistoryFilter narrows ListHistory. Zero values match everything.
type HistoryFilter struct {
	Model  string
	Action string
	Limit  int
}
