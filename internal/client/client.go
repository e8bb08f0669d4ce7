// Package client talks to the llmm dashboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a dashboard API client. Regular calls share a bounded HTTP client;
// streams use one without a timeout and end with their context.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	token        string
	log          zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces both underlying HTTP clients, e.g. with a test
// server's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = hc
	}
}

// WithToken sends token as a bearer credential on every request, including
// the event socket.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger installs a logger for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for the dashboard served at baseURL, which includes
// any base path (e.g. http://localhost:8000/llmm).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the dashboard address including base path.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	c.log.Debug().Str("method", method).Str("path", path).Msg("request")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable at %s: %w", c.baseURL, err)
	}
	return resp, nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, c.httpClient, http.MethodGet, path, nil)
}

func (c *Client) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, c.httpClient, http.MethodDelete, path, nil)
}

// decodeJSON reads the body into v. Error envelopes become *APIError whatever
// the status code; other non-2xx responses become *APIError with the raw body.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil {
		if msg := env.message(); msg != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: msg}
		}
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func modelPath(name string) string {
	return "/api/models/" + url.PathEscape(name)
}

type modelsBody struct {
	Models []Model `json:"models"`
}

// Models lists the installed models.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	return c.models(ctx, "/api/models")
}

// Running lists the models currently loaded in memory.
func (c *Client) Running(ctx context.Context) ([]Model, error) {
	return c.models(ctx, "/api/models/running")
}

func (c *Client) models(ctx context.Context, path string) ([]Model, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var body modelsBody
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	if body.Models == nil {
		body.Models = []Model{}
	}
	return body.Models, nil
}

// ModelInfo fetches the details and capabilities of one model.
func (c *Client) ModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	resp, err := c.get(ctx, modelPath(name)+"/info")
	if err != nil {
		return ModelInfo{}, err
	}
	var raw json.RawMessage
	if err := decodeJSON(resp, &raw); err != nil {
		return ModelInfo{}, err
	}
	var info ModelInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ModelInfo{}, fmt.Errorf("decoding model info: %w", err)
	}
	info.Raw = raw
	return info, nil
}

// Delete asks the server to remove a model. A reply with status "error" is
// returned as a result, not as an error; transport and decoding failures are
// errors.
func (c *Client) Delete(ctx context.Context, name string) (DeleteResult, error) {
	resp, err := c.delete(ctx, modelPath(name))
	if err != nil {
		return DeleteResult{}, err
	}
	defer resp.Body.Close()

	var res DeleteResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return DeleteResult{}, fmt.Errorf("decoding delete response (status %d): %w", resp.StatusCode, err)
	}
	return res, nil
}

// History returns the most recent actions, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	entries := []HistoryEntry{}
	if err := decodeJSON(resp, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Info returns the application identity served at the base path.
func (c *Client) Info(ctx context.Context) (AppInfo, error) {
	resp, err := c.get(ctx, "/")
	if err != nil {
		return AppInfo{}, err
	}
	var info AppInfo
	return info, decodeJSON(resp, &info)
}

// Health checks that the server answers /health.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// PullStream starts a pull and returns the SSE-framed progress body.
func (c *Client) PullStream(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.stream(ctx, "/api/models/pull", PullRequest{Name: name})
}

// UpdateStream re-pulls an installed model. The body has the same shape as
// PullStream.
func (c *Client) UpdateStream(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.stream(ctx, "/api/models/update", PullRequest{Name: name})
}

// ChatStream starts a chat and returns the SSE-framed response body.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if req.Options.IsZero() {
		req.Options = nil
	}
	return c.stream(ctx, "/api/chat", req)
}

// GenerateStream starts a bare completion and returns the SSE-framed body.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	if req.Options.IsZero() {
		req.Options = nil
	}
	return c.stream(ctx, "/api/generate", req)
}

// stream issues a POST whose body is consumed incrementally by the caller.
// Non-200 replies are decoded into *APIError.
func (c *Client) stream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if err := decodeJSON(resp, nil); err != nil {
			return nil, err
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return resp.Body, nil
}
