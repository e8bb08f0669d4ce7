package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/llmm/")
}

func TestModels(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/llmm/api/models", r.URL.Path)
		io.WriteString(w, `{"models":[{"name":"llama3:latest","size":4661224676,"details":{"parameter_size":"8B"}}]}`)
	}))

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3:latest", models[0].Name)
	assert.Equal(t, int64(4661224676), models[0].Size)
	assert.Equal(t, "8B", models[0].Details.ParameterSize)
}

func TestRunning_ErrorEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"models":[],"error":"connection refused"}`)
	}))

	_, err := c.Running(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "connection refused", apiErr.Message)
}

func TestModels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).Models(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server not reachable")
}

func TestModelInfo_EscapesNameAndKeepsRaw(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/llmm/api/models/hf.co%2Fowner%2Frepo:Q4/info", r.URL.EscapedPath())
		io.WriteString(w, `{"capabilities":["completion","thinking"],"license":"MIT","extra":1}`)
	}))

	info, err := c.ModelInfo(context.Background(), "hf.co/owner/repo:Q4")
	require.NoError(t, err)
	assert.True(t, info.Has(CapabilityThinking))
	assert.False(t, info.Has("vision"))
	assert.Equal(t, "MIT", info.License)
	assert.Contains(t, string(info.Raw), `"extra":1`)
}

func TestDelete(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/llmm/api/models/missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"status":"error","message":"model 'missing' not found"}`)
			return
		}
		io.WriteString(w, `{"status":"success","message":"Model llama3 deleted"}`)
	}))

	res, err := c.Delete(context.Background(), "llama3")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "Model llama3 deleted", res.Message)

	res, err = c.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "model 'missing' not found", res.Message)
}

func TestChatStream_RequestAndBody(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/llmm/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, "data: {\"message\":{\"content\":\"hi\"}}\n\n")
	}))

	body, err := c.ChatStream(context.Background(), ChatRequest{
		Model:    "qwen3",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		Options:  &Options{},
		Think:    true,
	})
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, "data: {\"message\":{\"content\":\"hi\"}}\n\n", string(data))
	assert.Equal(t, true, got["think"])
	assert.NotContains(t, got, "options", "empty options must be omitted")
}

func TestPullStream_ValidationError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":"error","message":"Model name is required"}`)
	}))

	_, err := c.PullStream(context.Background(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Model name is required", apiErr.Message)
}

func TestUpdateStream_PlainErrorStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/llmm/api/models/update", r.URL.Path)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.UpdateStream(context.Background(), "llama3")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		io.WriteString(w, `[{"id":"a","created_at":"2025-01-01T00:00:00Z","action":"pull","model":"llama3","status":"ok","duration_ms":12}]`)
	}))

	entries, err := c.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pull", entries[0].Action)
	assert.Equal(t, int64(12), entries[0].DurationMS)
}

func TestEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/llmm/ws", websocket.Handler(func(ws *websocket.Conn) {
		var ev Event
		if err := websocket.JSON.Receive(ws, &ev); err != nil {
			return
		}
		if ev.Event == EventRefreshModels {
			websocket.JSON.Send(ws, Event{Event: EventModelUpdate, Data: json.RawMessage(`{"refresh":true}`)})
		}
		// Hold the connection until the client hangs up.
		io.Copy(io.Discard, ws)
	}))
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := c.Events(ctx)
	require.NoError(t, err)
	defer events.Close()

	require.NoError(t, events.RequestRefresh())
	ev, err := events.Receive()
	require.NoError(t, err)
	assert.Equal(t, EventModelUpdate, ev.Event)

	var upd ModelUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &upd))
	assert.True(t, upd.Refresh)
}

func TestEvents_ContextCancelClosesSocket(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/llmm/ws", websocket.Handler(func(ws *websocket.Conn) {
		io.Copy(io.Discard, ws)
	}))
	c := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := c.Events(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := events.Receive()
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not return after cancel")
	}
}

func TestWithToken_SendsBearerHeader(t *testing.T) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("/llmm/api/models", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		io.WriteString(w, `{"models":[]}`)
	})
	mux.HandleFunc("/llmm/api/chat", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		io.WriteString(w, "data: {\"done\":true}\n\n")
	})
	mux.Handle("/llmm/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		websocket.Handler(func(ws *websocket.Conn) { io.Copy(io.Discard, ws) }).ServeHTTP(w, r)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/llmm", WithToken("s3cret"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Models(ctx)
	require.NoError(t, err)

	body, err := c.ChatStream(ctx, ChatRequest{Model: "m", Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	io.Copy(io.Discard, body)
	body.Close()

	events, err := c.Events(ctx)
	require.NoError(t, err)
	events.Close()

	assert.Equal(t, []string{"Bearer s3cret", "Bearer s3cret", "Bearer s3cret"}, seen)
}

func TestWithoutToken_NoAuthorizationHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, `{"models":[]}`)
	}))

	_, err := c.Models(context.Background())
	require.NoError(t, err)
}
