package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bitdruid/llmm/internal/api"
	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/config"
	"github.com/bitdruid/llmm/internal/logging"
	"github.com/bitdruid/llmm/internal/ollama"
	"github.com/bitdruid/llmm/internal/refresh"
	"github.com/bitdruid/llmm/internal/storage"
	"github.com/bitdruid/llmm/internal/tui"
	"github.com/bitdruid/llmm/internal/view"
)

const (
	defaultHistoryRetention = 90 * 24 * time.Hour
	pruneInterval           = 24 * time.Hour
	shutdownTimeout         = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API in the foreground",
	Long: `Run the dashboard API in the foreground.

Examples:
  llmm serve
  LLMM_SERVER_PORT=8000 BASE_PATH=/llmm llmm serve
  llmm serve --pull llama3:8b,qwen3:4b`,
	RunE: func(cmd *cobra.Command, args []string) error {
		preload, _ := cmd.Flags().GetStringSlice("pull")
		retention, _ := cmd.Flags().GetDuration("history-retention")
		return runServer(cmd.Context(), preload, retention)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the model tools over MCP on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dashboard and Ollama status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context(), cmd.OutOrStdout())
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context(), generationOptions(cmd))
	},
}

func init() {
	serveCmd.Flags().StringSlice("pull", nil, "models to pull before serving, comma-separated")
	serveCmd.Flags().Duration("history-retention", defaultHistoryRetention, "drop history entries older than this (0 keeps everything)")
	addGenerationFlags(tuiCmd)
}

func newLogger(cfg config.Config, console io.Writer) (zerolog.Logger, func() error, error) {
	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: console,
		NoColor: noColor,
	})
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("initializing logging: %w", err)
	}
	return log, closeLog, nil
}

func runServer(ctx context.Context, preload []string, retention time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info().Str("version", version).Msg("starting llmm")

	oc := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.Timeout)
	if len(preload) > 0 {
		printStep("Preparing %d model(s)", len(preload))
		if err := ollama.EnsureModels(ctx, oc, preload, os.Stderr); err != nil {
			return err
		}
	} else if !oc.IsRunning(ctx) {
		log.Warn().Str("url", cfg.Ollama.BaseURL).Msg("ollama is not reachable, model calls will fail until it is")
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing storage")
		}
	}()

	if retention > 0 {
		pruner := refresh.New("history-prune", pruneInterval, func(ctx context.Context) error {
			n, err := store.PruneHistory(ctx, time.Now().Add(-retention))
			if n > 0 {
				log.Info().Int64("removed", n).Msg("pruned history")
			}
			return err
		}, refresh.WithLogger(log))
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	handler := api.NewHandler(api.Deps{
		Ollama:      oc,
		History:     store,
		BasePath:    cfg.Server.BasePath,
		CORSOrigins: cfg.Server.CORSOrigins,
		Token:       cfg.Server.Token,
		Logger:      log,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("base_path", cfg.Server.BasePath).Str("ollama", cfg.Ollama.BaseURL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	deps := api.MCPDeps{Ollama: ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.Timeout)}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable, MCP actions will not be recorded")
	} else {
		defer store.Close()
		deps.History = store
	}

	stdio := server.NewStdioServer(api.NewMCPServer(deps))
	log.Info().Msg("MCP server started (stdio transport)")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context, w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}
	if err := c.Health(ctx); err != nil {
		printStatus(w, "Server", "not reachable at %s", c.BaseURL())
	} else {
		info, err := c.Info(ctx)
		if err != nil {
			printStatus(w, "Server", "running at %s", c.BaseURL())
		} else {
			printStatus(w, "Server", "%s %s at %s", info.Name, info.Version, c.BaseURL())
		}
		if models, err := c.Models(ctx); err == nil {
			printStatus(w, "Models", "%d installed", len(models))
		} else {
			printStatus(w, "Models", "%s", colorize(colorRed, err.Error()))
		}
		if running, err := c.Running(ctx); err == nil {
			printStatus(w, "Running", "%d", len(running))
		}
	}

	probe := ollama.New(cfg.Ollama.BaseURL, 2*time.Second)
	if probe.IsRunning(ctx) {
		printStatus(w, "Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus(w, "Ollama", "not reachable at %s", cfg.Ollama.BaseURL)
	}
	printStatus(w, "Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func runTUI(ctx context.Context, gen *client.Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// The screen belongs to the TUI; logs only go to the log file.
	log, closeLog, err := newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	c, err := newAPIClient()
	if err != nil {
		return err
	}
	theme, err := view.ParseTheme(cfg.UI.Theme)
	if err != nil {
		theme = view.ThemeLight
	}

	return tui.Run(ctx, tui.Options{
		Backend: c,
		Events: func(ctx context.Context) (tui.EventStream, error) {
			ev, err := c.Events(ctx)
			if err != nil {
				return nil, err
			}
			return ev, nil
		},
		Theme: theme,
		SaveTheme: func(t view.Theme) error {
			return config.SetKey("ui.theme", string(t))
		},
		Generation:      gen,
		RunningInterval: cfg.Dashboard.RunningInterval,
		TotalsInterval:  cfg.Dashboard.TotalsInterval,
		Logger:          log,
	})
}
