package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Theme values accepted by ui.theme.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Log       LogConfig
	Client    ClientConfig
	UI        UIConfig
	Dashboard DashboardConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	BasePath    string
	CORSOrigins []string
	// Token, when set, is required as a bearer token by the dashboard API
	// and sent by the CLI and TUI.
	Token string
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	// File enables a rotating log file in addition to stderr.
	File string
}

type ClientConfig struct {
	// ServerURL is where CLI and TUI commands find the dashboard API. Empty
	// means the local server derived from the server section.
	ServerURL string
}

type UIConfig struct {
	Theme string
}

type DashboardConfig struct {
	RunningInterval time.Duration
	TotalsInterval  time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        5000,
			CORSOrigins: []string{"*"},
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Timeout: 300 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			Theme: ThemeLight,
		},
		Dashboard: DashboardConfig{
			RunningInterval: 3 * time.Second,
			TotalsInterval:  30 * time.Second,
		},
	}
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/llmm/config.toml (or $LLMM_CONFIG), then applies
// environment overrides. LLMM_* variables win over the legacy OLLAMA_URL and
// BASE_PATH names. An unset server.token falls back to the platform keychain
// (service "llmm", account "server_token"); outside macOS that is
// secrets.json in the data directory.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), keychainReader{})
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path), nil)
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Token == "" && kc != nil {
		if tok, err := kc.Get(keychainService, keychainTokenAccount); err == nil && tok != "" {
			cfg.Server.Token = tok
		}
	}

	if cfg.Ollama.BaseURL == "" {
		return Config{}, fmt.Errorf("missing required config: ollama.base_url. " +
			"Set it via environment variable LLMM_OLLAMA_BASE_URL or OLLAMA_URL")
	}
	return cfg, nil
}

const (
	keychainService      = "llmm"
	keychainTokenAccount = "server_token"
)

// keychainReader reads from the macOS Keychain via the security CLI, or from
// the secrets file elsewhere.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ServerURL is the dashboard API root used by clients, including the base
// path.
func (c Config) ServerURL() string {
	if c.Client.ServerURL != "" {
		return c.Client.ServerURL
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port)) + c.Server.BasePath
}

// NormalizeBasePath returns p with a leading slash and no trailing slash.
// Empty and "/" both mean the root and yield "".
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
