package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
	kList
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kDuration:
		return "duration"
	case kList:
		return "list"
	default:
		return "string"
	}
}

type keySpec struct {
	key    string
	typ    keyType
	env    string
	alias  string // legacy env var, consulted when env is unset
	secret bool   // masked by ShowAll
	// validate, when set, rejects values before they are applied or stored.
	validate func(v any) error
	apply    func(cfg *Config, v any)
	extract  func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "LLMM_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "LLMM_SERVER_PORT",
		validate: validPort,
		apply:    func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract:  func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.base_path", typ: kString, env: "LLMM_SERVER_BASE_PATH", alias: "BASE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Server.BasePath = NormalizeBasePath(v.(string)) },
		extract: func(cfg Config) any { return cfg.Server.BasePath },
	},
	{
		key: "server.cors_origins", typ: kList, env: "LLMM_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.CORSOrigins, ",") },
	},
	{
		key: "server.token", typ: kString, env: "LLMM_SERVER_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = strings.TrimSpace(v.(string)) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LLMM_OLLAMA_BASE_URL", alias: "OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = strings.TrimRight(v.(string), "/") },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.timeout", typ: kDuration, env: "LLMM_OLLAMA_TIMEOUT",
		validate: positiveDuration,
		apply:    func(cfg *Config, v any) { cfg.Ollama.Timeout = v.(time.Duration) },
		extract:  func(cfg Config) any { return cfg.Ollama.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LLMM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "LLMM_LOG_LEVEL",
		validate: oneOf("trace", "debug", "info", "warn", "error"),
		apply:    func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract:  func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "LLMM_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "client.server_url", typ: kString, env: "LLMM_SERVER_URL",
		apply:   func(cfg *Config, v any) { cfg.Client.ServerURL = strings.TrimRight(v.(string), "/") },
		extract: func(cfg Config) any { return cfg.Client.ServerURL },
	},
	{
		key: "ui.theme", typ: kString, env: "LLMM_THEME",
		validate: oneOf(ThemeLight, ThemeDark),
		apply:    func(cfg *Config, v any) { cfg.UI.Theme = v.(string) },
		extract:  func(cfg Config) any { return cfg.UI.Theme },
	},
	{
		key: "dashboard.running_interval", typ: kDuration, env: "LLMM_DASHBOARD_RUNNING_INTERVAL",
		validate: positiveDuration,
		apply:    func(cfg *Config, v any) { cfg.Dashboard.RunningInterval = v.(time.Duration) },
		extract:  func(cfg Config) any { return cfg.Dashboard.RunningInterval },
	},
	{
		key: "dashboard.totals_interval", typ: kDuration, env: "LLMM_DASHBOARD_TOTALS_INTERVAL",
		validate: positiveDuration,
		apply:    func(cfg *Config, v any) { cfg.Dashboard.TotalsInterval = v.(time.Duration) },
		extract:  func(cfg Config) any { return cfg.Dashboard.TotalsInterval },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func validPort(v any) error {
	if p := v.(int); p < 1 || p > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", p)
	}
	return nil
}

func positiveDuration(v any) error {
	if d := v.(time.Duration); d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func oneOf(allowed ...string) func(any) error {
	return func(v any) error {
		s := v.(string)
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %s", s, strings.Join(allowed, ", "))
	}
}

// parseValue converts raw text into the Go value for typ. Durations accept
// Go syntax ("30s") or a bare number of seconds.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kDuration:
		raw = strings.TrimSpace(raw)
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(raw)
	case kList:
		var out []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

func (s keySpec) check(v any) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(v)
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kInt:
			v, ok, err = b.GetInt(s.key)
		default:
			var raw string
			raw, ok, err = b.GetString(s.key)
			if err == nil && ok {
				if raw == "" && s.typ != kString {
					ok = false
					break
				}
				if v, err = parseValue(s.typ, raw); err != nil {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
					continue
				}
			}
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok {
			continue
		}
		if err := s.check(v); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] invalid config key %s: %v. Using default value.\n", s.key, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.env, os.Getenv(s.env)
		if raw == "" && s.alias != "" {
			name, raw = s.alias, os.Getenv(s.alias)
		}
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, name, raw, err)
			continue
		}
		if err := s.check(v); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] invalid env var %s: %v. Using default value.\n", name, err)
			continue
		}
		s.apply(cfg, v)
	}
}
