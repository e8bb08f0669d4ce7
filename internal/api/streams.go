package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bitdruid/llmm/internal/ollama"
	"github.com/bitdruid/llmm/internal/storage"
	"github.com/bitdruid/llmm/internal/stream"
)

type pullRequest struct {
	Name string `json:"name"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []ollama.Message `json:"messages"`
	Options  *ollama.Options  `json:"options,omitempty"`
	Think    bool             `json:"think,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Options *ollama.Options `json:"options,omitempty"`
}

// handlePull serves both pull and update: an update is a pull of a model
// that is already installed.
func (s *apiServer) handlePull(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pullRequest
		if err := decodeBody(w, r, &req); err != nil {
			statusError(w, http.StatusBadRequest, "%v", err)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			statusError(w, http.StatusBadRequest, msgNameRequired)
			return
		}
		s.log.Info().Str("model", name).Str("action", action).Msg("pulling model")

		start := time.Now()
		body, err := s.ollama.PullStream(r.Context(), name)
		res := s.relay(w, r, action, body, err, pullErrorFrame)

		entry := storage.Entry{Action: action, Model: name, Status: storage.StatusOK, Detail: res.lastStatus}
		if res.err != "" {
			entry.Status, entry.Detail = storage.StatusError, res.err
		}
		s.record(r.Context(), entry, start)
		if res.err == "" && !res.cancelled {
			s.hub.ModelsChanged()
		}
	}
}

func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Model == "" {
		httpError(w, http.StatusBadRequest, msgNameRequired)
		return
	}
	if len(req.Messages) == 0 {
		httpError(w, http.StatusBadRequest, msgMessagesRequired)
		return
	}
	s.log.Info().Str("model", req.Model).Int("messages", len(req.Messages)).Bool("think", req.Think).Msg("chat")

	start := time.Now()
	body, err := s.ollama.ChatStream(r.Context(), req.Model, req.Messages, req.Options, req.Think)
	res := s.relay(w, r, storage.ActionChat, body, err, messageErrorFrame)
	s.record(r.Context(), res.entry(storage.ActionChat, req.Model, fmt.Sprintf("%d messages", len(req.Messages))), start)
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Model == "" {
		httpError(w, http.StatusBadRequest, msgNameRequired)
		return
	}
	if req.Prompt == "" {
		httpError(w, http.StatusBadRequest, msgPromptRequired)
		return
	}
	s.log.Info().Str("model", req.Model).Msg("generate")

	start := time.Now()
	body, err := s.ollama.GenerateStream(r.Context(), req.Model, req.Prompt, req.Options)
	res := s.relay(w, r, storage.ActionGenerate, body, err, messageErrorFrame)
	s.record(r.Context(), res.entry(storage.ActionGenerate, req.Model, fmt.Sprintf("%d prompt chars", len([]rune(req.Prompt)))), start)
}

func pullErrorFrame(msg string) any {
	return map[string]string{"status": "error", "error": msg}
}

func messageErrorFrame(msg string) any {
	return map[string]string{"error": msg}
}

// relayResult summarises a relayed stream for the action log.
type relayResult struct {
	frames     int
	lastStatus string
	err        string
	cancelled  bool
}

func (res relayResult) entry(action, model, detail string) storage.Entry {
	e := storage.Entry{Action: action, Model: model, Status: storage.StatusOK, Detail: detail}
	if res.err != "" {
		e.Status, e.Detail = storage.StatusError, res.err
	}
	return e
}

// relay re-frames the inference server's NDJSON lines as "data: <json>"
// lines, flushing after each. The JSON is forwarded unchanged. An open or
// read failure becomes one final error frame built by errFrame, so clients
// always see failures in-band.
func (s *apiServer) relay(w http.ResponseWriter, r *http.Request, kind string, body io.ReadCloser, openErr error, errFrame func(string) any) relayResult {
	var res relayResult

	flusher, ok := w.(http.Flusher)
	if !ok {
		if body != nil {
			body.Close()
		}
		httpError(w, http.StatusInternalServerError, "streaming not supported")
		res.err = "streaming not supported"
		return res
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := s.log.With().Str("stream", kind).Logger()
	fail := func(msg string) {
		res.err = msg
		streamErrorsTotal.WithLabelValues(kind).Inc()
		payload, err := json.Marshal(errFrame(msg))
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal stream error payload")
			return
		}
		fmt.Fprintf(w, "%s%s\n\n", stream.DataPrefix, payload)
		flusher.Flush()
	}

	if openErr != nil {
		log.Error().Err(openErr).Msg("opening upstream stream")
		fail(upstreamMessage(openErr))
		return res
	}
	defer body.Close()

	ctx := r.Context()
	dec := stream.NewDecoder(body, stream.WithFraming(stream.NDJSON), stream.WithLogger(log))
	for dec.Next(ctx) {
		f := dec.Frame()
		if _, err := fmt.Fprintf(w, "%s%s\n\n", stream.DataPrefix, dec.Raw()); err != nil {
			res.cancelled = true
			return res
		}
		flusher.Flush()
		res.frames++
		streamFramesTotal.WithLabelValues(kind).Inc()

		if f.HasError() {
			res.err = string(f.Error)
			streamErrorsTotal.WithLabelValues(kind).Inc()
		} else if f.Status != "" {
			res.lastStatus = f.Status
		}
	}

	if err := dec.Err(); err != nil {
		if ctx.Err() != nil {
			// The client went away; nobody is left to read an error frame.
			res.cancelled = true
			if res.err == "" {
				res.err = context.Cause(ctx).Error()
			}
			log.Debug().Err(err).Msg("client cancelled stream")
			return res
		}
		log.Error().Err(err).Msg("upstream stream read error")
		fail(err.Error())
	}
	if n := dec.Dropped(); n > 0 {
		log.Debug().Int("dropped", n).Msg("upstream stream had malformed lines")
	}
	return res
}
