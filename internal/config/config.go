package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment overrides.
const (
	EnvAPIURL      = "OMNI_API_URL"
	EnvRealtimeURL = "OMNI_REALTIME_URL"
)

// Defaults applied to unset fields.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultStaleAfter     = 5 * time.Minute
	DefaultMaxRetries     = 3
)

// Duration is a time.Duration written as a Go duration string ("30s", "5m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.omnichat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	// APIURL is the base URL of the remote instance service.
	APIURL string `toml:"api_url"`
	// RealtimeURL is the websocket endpoint. Derived from APIURL when empty.
	RealtimeURL string `toml:"realtime_url,omitempty"`
	// WebhookURL prefixes the callback URLs registered on create. Defaults to APIURL.
	WebhookURL     string   `toml:"webhook_url,omitempty"`
	RequestTimeout Duration `toml:"request_timeout,omitempty"`
	StaleAfter     Duration `toml:"stale_after,omitempty"`
	// MaxRetries is a pointer so an explicit 0 disables retries.
	MaxRetries    *int     `toml:"max_retries,omitempty"`
	FlushInterval Duration `toml:"flush_interval,omitempty"`

	// OptimisticCreate lists a new instance before the service confirms it.
	OptimisticCreate bool `toml:"optimistic_create,omitempty"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Resolve builds the effective configuration: the file at path (optional),
// then .env files (optional, defaulting to ./.env), then the environment, then
// defaults. The API URL is required.
func Resolve(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// godotenv never overrides variables already present in the environment.
	_ = godotenv.Load(envFiles...)

	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRealtimeURL)); v != "" {
		cfg.RealtimeURL = v
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return fmt.Errorf("api_url is not set (config file or %s)", EnvAPIURL)
	}
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("invalid api_url %q: %w", c.APIURL, err)
	}
	if c.RealtimeURL == "" {
		ws, err := DeriveRealtimeURL(c.APIURL)
		if err != nil {
			return err
		}
		c.RealtimeURL = ws
	}
	if c.WebhookURL == "" {
		c.WebhookURL = c.APIURL
	}
	if c.RequestTimeout.Duration <= 0 {
		c.RequestTimeout.Duration = DefaultRequestTimeout
	}
	if c.StaleAfter.Duration <= 0 {
		c.StaleAfter.Duration = DefaultStaleAfter
	}
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		n := DefaultMaxRetries
		c.MaxRetries = &n
	}
	return nil
}

// Retries returns the configured retry bound.
func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// DeriveRealtimeURL maps an http(s) API URL onto the ws(s) endpoint served on
// the same host at /ws.
func DeriveRealtimeURL(api string) (string, error) {
	u, err := url.Parse(api)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
