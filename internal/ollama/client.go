package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bitdruid/llmm/internal/stream"
)

// DefaultTimeout bounds the non-streaming calls. Streams (pull, chat,
// generate) are bounded only by their context.
const DefaultTimeout = 300 * time.Second

// Client communicates with a local Ollama instance over HTTP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a Client targeting the given Ollama base URL. A timeout <= 0
// selects DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{Timeout: 0},
	}
}

// BaseURL returns the upstream address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is returned when Ollama answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// statusError drains resp and builds a StatusError, picking up Ollama's
// {"error": "..."} body when present.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// IsRunning returns true if the Ollama server responds to GET /api/tags with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns all models available in the local Ollama instance.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	return c.models(ctx, "/api/tags")
}

// RunningModels returns the models currently loaded in memory.
func (c *Client) RunningModels(ctx context.Context) ([]Model, error) {
	return c.models(ctx, "/api/ps")
}

func (c *Client) models(ctx context.Context, path string) ([]Model, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if list.Models == nil {
		list.Models = []Model{}
	}
	return list.Models, nil
}

// HasModel reports whether the given model name is present locally.
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		// Ollama may return "phi3.5:latest"; match without tag suffix.
		if m.Name == name || strings.HasPrefix(m.Name, name+":") {
			return true
		}
	}
	return false
}

// Show returns the raw /api/show document for a model. The document is kept
// opaque so fields added upstream reach the dashboard untouched.
func (c *Client) Show(ctx context.Context, name string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/show", nameRequest{Name: name})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("showing model %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding show response: %w", err)
	}
	return raw, nil
}

// Delete removes a model from local storage.
func (c *Client) Delete(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/delete", nameRequest{Name: name})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting model %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// PullStream starts a pull and returns the NDJSON progress body. The caller
// must close it.
func (c *Client) PullStream(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.openStream(ctx, "/api/pull", nameRequest{Name: name})
}

// ChatStream starts a streaming chat. think is only sent when true, options
// only when at least one is set.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, opts *Options, think bool) (io.ReadCloser, error) {
	cr := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Think:    think,
	}
	if !opts.IsZero() {
		cr.Options = opts
	}
	return c.openStream(ctx, "/api/chat", cr)
}

// GenerateStream starts a streaming completion for a bare prompt.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, opts *Options) (io.ReadCloser, error) {
	gr := generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
	}
	if !opts.IsZero() {
		gr.Options = opts
	}
	return c.openStream(ctx, "/api/generate", gr)
}

func (c *Client) openStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// Pull downloads a model, reading the streamed progress to completion.
// The optional progress callback receives each progress line; pass nil to ignore.
func (c *Client) Pull(ctx context.Context, name string, onProgress func(PullProgress)) error {
	body, err := c.PullStream(ctx, name)
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", name, err)
	}
	defer body.Close()

	dec := stream.NewDecoder(body, stream.WithFraming(stream.NDJSON))
	for f := range dec.Frames(ctx) {
		if f.HasError() {
			return fmt.Errorf("pull %s: %s", name, f.Error)
		}
		if onProgress != nil {
			p := PullProgress{Status: f.Status, Digest: f.Digest}
			if f.Total != nil {
				p.Total = *f.Total
			}
			if f.Completed != nil {
				p.Completed = *f.Completed
			}
			onProgress(p)
		}
	}
	if err := dec.Err(); err != nil {
		return fmt.Errorf("reading pull progress: %w", err)
	}
	return nil
}

// Chat sends messages to the given model and returns the assistant's full
// response, assembled from the streamed deltas.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts *Options) (string, error) {
	body, err := c.ChatStream(ctx, model, messages, opts, false)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer body.Close()

	var sb strings.Builder
	dec := stream.NewDecoder(body, stream.WithFraming(stream.NDJSON))
	for f := range dec.Frames(ctx) {
		if f.HasError() {
			return sb.String(), fmt.Errorf("chat: %s", f.Error)
		}
		if f.Message != nil {
			sb.WriteString(f.Message.Content)
		}
	}
	if err := dec.Err(); err != nil {
		return sb.String(), fmt.Errorf("reading chat response: %w", err)
	}
	return sb.String(), nil
}
