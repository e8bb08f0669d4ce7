package ollama

import "time"

// Message represents a chat message in the Ollama API format.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

// ModelDetails is the "details" object attached to every model entry.
type ModelDetails struct {
	Format            string   `json:"format,omitempty" yaml:"format,omitempty"`
	Family            string   `json:"family,omitempty" yaml:"family,omitempty"`
	Families          []string `json:"families,omitempty" yaml:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty" yaml:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty" yaml:"quantization_level,omitempty"`
}

// Model is one entry of /api/tags or /api/ps. Running entries also carry
// SizeVRAM and ExpiresAt.
type Model struct {
	Name       string       `json:"name" yaml:"name"`
	Model      string       `json:"model,omitempty" yaml:"model,omitempty"`
	Size       int64        `json:"size" yaml:"size"`
	Digest     string       `json:"digest,omitempty" yaml:"digest,omitempty"`
	ModifiedAt *time.Time   `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
	SizeVRAM   int64        `json:"size_vram,omitempty" yaml:"size_vram,omitempty"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Details    ModelDetails `json:"details" yaml:"details"`
}

// ModelList is the body of /api/tags and /api/ps.
type ModelList struct {
	Models []Model `json:"models"`
}

// Options are the generation parameters forwarded verbatim to the model.
// Nil fields are left to the model's defaults.
type Options struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	Seed          *int     `json:"seed,omitempty"`
	NumPredict    *int     `json:"num_predict,omitempty"`
	NumCtx        *int     `json:"num_ctx,omitempty"`
}

// IsZero reports whether no option is set.
func (o *Options) IsZero() bool {
	return o == nil || (o.Temperature == nil && o.TopK == nil && o.TopP == nil &&
		o.RepeatPenalty == nil && o.Seed == nil && o.NumPredict == nil && o.NumCtx == nil)
}

// PullProgress is one line of the streamed pull response.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Think    bool      `json:"think,omitempty"`
	Options  *Options  `json:"options,omitempty"`
}

// generateRequest is the JSON body for POST /api/generate.
type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// nameRequest is the body shared by /api/pull, /api/delete and /api/show.
type nameRequest struct {
	Name   string `json:"name"`
	Stream *bool  `json:"stream,omitempty"`
}
