package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/ollama"
	"github.com/bitdruid/llmm/internal/storage"
)

// modelsResponse carries error next to an always-present models list, so
// dashboards can render an empty table and the message together.
type modelsResponse struct {
	Models []ollama.Model `json:"models"`
	Error  string         `json:"error,omitempty"`
}

func (s *apiServer) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.ollama.ListModels(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing models")
		writeJSON(w, http.StatusBadGateway, modelsResponse{Models: []ollama.Model{}, Error: upstreamMessage(err)})
		return
	}
	if models == nil {
		models = []ollama.Model{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

func (s *apiServer) handleRunningModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.ollama.RunningModels(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("getting running models")
		writeJSON(w, http.StatusBadGateway, modelsResponse{Models: []ollama.Model{}, Error: upstreamMessage(err)})
		return
	}
	if models == nil {
		models = []ollama.Model{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

// Messages for rejected requests.
const (
	msgNameRequired     = "Model name is required"
	msgMessagesRequired = "Messages are required"
	msgPromptRequired   = "Prompt is required"
)

// modelParam returns the {name} segment, or a message explaining why it is
// unusable. chi matches on the escaped path, so names containing "/" arrive
// percent-encoded.
func modelParam(r *http.Request) (name, problem string) {
	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Sprintf("invalid model name %q", raw)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", msgNameRequired
	}
	return name, ""
}

func (s *apiServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	name, problem := modelParam(r)
	if problem != "" {
		httpError(w, http.StatusBadRequest, "%s", problem)
		return
	}
	s.log.Info().Str("model", name).Msg("fetching model info")

	raw, err := s.ollama.Show(r.Context(), name)
	if err != nil {
		s.log.Error().Err(err).Str("model", name).Msg("getting model info")
		httpError(w, upstreamStatus(err), "%s", upstreamMessage(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (s *apiServer) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	name, problem := modelParam(r)
	if problem != "" {
		statusError(w, http.StatusBadRequest, "%s", problem)
		return
	}
	s.log.Info().Str("model", name).Msg("deleting model")
	start := time.Now()

	entry := storage.Entry{Action: storage.ActionDelete, Model: name}
	if err := s.ollama.Delete(r.Context(), name); err != nil {
		s.log.Error().Err(err).Str("model", name).Msg("deleting model")
		msg := upstreamMessage(err)
		entry.Status, entry.Detail = storage.StatusError, msg
		s.record(r.Context(), entry, start)
		statusError(w, upstreamStatus(err), "%s", msg)
		return
	}

	s.record(r.Context(), entry, start)
	s.hub.ModelsChanged()
	writeJSON(w, http.StatusOK, client.DeleteResult{
		Status:  "success",
		Message: fmt.Sprintf("Model %s deleted", name),
	})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := []storage.Entry{}
	if s.history != nil {
		var err error
		entries, err = s.history.ListHistory(r.Context(), storage.HistoryFilter{
			Model:  r.URL.Query().Get("model"),
			Action: r.URL.Query().Get("action"),
			Limit:  parseIntParam(r, "limit", storage.DefaultHistoryLimit, 500),
		})
		if err != nil {
			s.log.Error().Err(err).Msg("listing history")
			httpError(w, http.StatusInternalServerError, "failed to list history: %v", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, entries)
}
