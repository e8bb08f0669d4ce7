package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/config"
)

// newAPIClient returns a dashboard client for the configured server, or the
// one given with --server. Tests replace it.
var newAPIClient = func() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return clientFor(cfg, serverURL), nil
}

// clientFor builds a client for cfg. A non-empty override replaces the
// configured server URL.
func clientFor(cfg config.Config, override string) *client.Client {
	base := cfg.ServerURL()
	if override != "" {
		base = override
	}
	opts := []client.Option{client.WithTimeout(30 * time.Second)}
	if cfg.Server.Token != "" {
		opts = append(opts, client.WithToken(cfg.Server.Token))
	}
	return client.New(base, opts...)
}

// stdin is where prompts and interactive chat read from. Tests replace it.
var stdin io.Reader = os.Stdin

// confirm asks a yes/no question on stderr. Only "y" or "yes" approve.
func confirm(r *bufio.Reader, question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
