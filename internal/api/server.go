// Package api serves the dashboard API: model management and streaming chat
// on top of the inference server, plus history, events and metrics.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/ollama"
	"github.com/bitdruid/llmm/internal/storage"
)

// Application identity served at the base path.
const (
	AppName    = "llmm"
	AppVersion = "1.0.0"
	AppAuthor  = "bitdruid"
	GithubURL  = "https://github.com/bitdruid/llm-manager-ui"
)

// Upstream is the inference server as seen by the HTTP layer.
type Upstream interface {
	ListModels(ctx context.Context) ([]ollama.Model, error)
	RunningModels(ctx context.Context) ([]ollama.Model, error)
	Show(ctx context.Context, name string) (json.RawMessage, error)
	Delete(ctx context.Context, name string) error
	PullStream(ctx context.Context, name string) (io.ReadCloser, error)
	ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options, think bool) (io.ReadCloser, error)
	GenerateStream(ctx context.Context, model, prompt string, opts *ollama.Options) (io.ReadCloser, error)
}

// HistoryStore persists the action log.
type HistoryStore interface {
	RecordHistory(ctx context.Context, e storage.Entry) (storage.Entry, error)
	ListHistory(ctx context.Context, f storage.HistoryFilter) ([]storage.Entry, error)
}

type Deps struct {
	Ollama Upstream
	// History is optional; without it actions are not recorded and
	// /api/history is always empty.
	History HistoryStore
	// Hub is created when nil.
	Hub         *Hub
	BasePath    string
	CORSOrigins []string
	// Token, when set, is required as a bearer token on /ws and /api/*.
	Token  string
	Logger zerolog.Logger
}

type apiServer struct {
	ollama  Upstream
	history HistoryStore
	hub     *Hub
	base    string
	log     zerolog.Logger
}

// NewHandler returns the dashboard API mounted under deps.BasePath, which
// must already be normalised ("" or "/path").
func NewHandler(deps Deps) http.Handler {
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}
	s := &apiServer{
		ollama:  deps.Ollama,
		history: deps.History,
		hub:     deps.Hub,
		base:    deps.BasePath,
		log:     deps.Logger,
	}

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Use(middleware.Recoverer)
	root.Use(MetricsMiddleware)
	root.Use(s.requestLogger)
	root.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	app := chi.NewRouter()
	app.Group(func(r chi.Router) {
		r.Use(inflightMiddleware)

		r.Get("/", s.handleInfo)
		r.Get("/home", s.redirectHome)
		r.Get("/models", s.redirectHome)
		r.Get("/health", handleHealth)

		r.Group(func(r chi.Router) {
			if deps.Token != "" {
				r.Use(BearerAuth(deps.Token))
			}
			r.Get("/ws", s.hub.ServeHTTP)

			r.Get("/api/models", s.handleListModels)
			r.Get("/api/models/running", s.handleRunningModels)
			r.Post("/api/models/pull", s.handlePull(storage.ActionPull))
			r.Post("/api/models/update", s.handlePull(storage.ActionUpdate))
			r.Get("/api/models/{name}/info", s.handleModelInfo)
			r.Delete("/api/models/{name}", s.handleDeleteModel)
			r.Post("/api/chat", s.handleChat)
			r.Post("/api/generate", s.handleGenerate)
			r.Get("/api/history", s.handleHistory)
		})
	})
	app.Get("/metrics", promhttp.Handler().ServeHTTP)

	if s.base == "" {
		root.Mount("/", app)
	} else {
		root.Mount(s.base, app)
		root.Get("/", s.redirectHome)
	}
	return root
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("dur", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *apiServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, client.AppInfo{
		Name:      AppName,
		Version:   AppVersion,
		Author:    AppAuthor,
		GithubURL: GithubURL,
	})
}

func (s *apiServer) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.base+"/", http.StatusTemporaryRedirect)
}

// record appends to the action log. Failures are logged, never surfaced to
// the caller whose action already happened.
func (s *apiServer) record(ctx context.Context, e storage.Entry, start time.Time) {
	if s.history == nil {
		return
	}
	e.DurationMS = time.Since(start).Milliseconds()
	if _, err := s.history.RecordHistory(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn().Err(err).Str("action", e.Action).Str("model", e.Model).Msg("recording history")
	}
}
