package client

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/bitdruid/llmm/internal/ollama"
	"github.com/bitdruid/llmm/internal/storage"
)

// Model is a model entry as listed by /api/models and /api/models/running.
type Model = ollama.Model

// Options are the optional generation parameters of a chat or generate call.
type Options = ollama.Options

// HistoryEntry is one recorded model-management action.
type HistoryEntry = storage.Entry

// CapabilityThinking marks models that stream a separate reasoning channel.
const CapabilityThinking = "thinking"

// ModelInfo is the body of /api/models/{name}/info. Raw keeps the full
// document for callers that print it.
type ModelInfo struct {
	Capabilities []string            `json:"capabilities"`
	Details      ollama.ModelDetails `json:"details"`
	ModelInfo    map[string]any      `json:"model_info,omitempty"`
	Parameters   string              `json:"parameters,omitempty"`
	Template     string              `json:"template,omitempty"`
	License      string              `json:"license,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Has reports whether the model advertises the given capability.
func (m ModelInfo) Has(capability string) bool {
	return slices.Contains(m.Capabilities, capability)
}

// ChatMessage is a message as sent to /api/chat. Thinking is never sent back.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Options  *Options      `json:"options,omitempty"`
	Think    bool          `json:"think,omitempty"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Options *Options `json:"options,omitempty"`
}

// PullRequest is the body of POST /api/models/pull and /api/models/update.
type PullRequest struct {
	Name string `json:"name"`
}

// DeleteResult is the body of DELETE /api/models/{name}.
type DeleteResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the server confirmed the deletion.
func (r DeleteResult) OK() bool { return r.Status == "success" }

// AppInfo is served at the base path root.
type AppInfo struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Author    string `json:"author" yaml:"author"`
	GithubURL string `json:"github_url" yaml:"github_url"`
}

// APIError is an application error reported by the dashboard API, either as
// {"error": "..."} or {"status": "error", "message": "..."}.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// errorEnvelope matches both error shapes of the dashboard API.
type errorEnvelope struct {
	Error   string `json:"error"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e errorEnvelope) message() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Status == "error" {
		if e.Message != "" {
			return e.Message
		}
		return "unknown error"
	}
	return ""
}
