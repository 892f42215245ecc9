// Package config loads the deskpilot configuration file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/environment"
)

const (
	DriverVM      = "vm"
	DriverBrowser = "browser"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Desktop     DesktopConfig    `yaml:"desktop"`
	Backends    BackendsConfig   `yaml:"backends"`
	Loop        LoopConfig       `yaml:"loop"`
	Sessions    SessionsConfig   `yaml:"sessions"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Transcripts TranscriptConfig `yaml:"transcripts"`
}

type ServerConfig struct {
	Listen string     `yaml:"listen"`
	Auth   AuthConfig `yaml:"auth"`
	// AllowedOrigins lists the origins allowed for WebSocket upgrades.
	// Empty means same origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Secret signs API tokens. Usually set through DESKPILOT_JWT_SECRET.
	Secret string `yaml:"secret"`
}

type DesktopConfig struct {
	Driver  string        `yaml:"driver"`
	VM      VMConfig      `yaml:"vm"`
	Browser BrowserConfig `yaml:"browser"`
}

type VMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	ProjectID  string        `yaml:"project_id"`
	ComputerID string        `yaml:"computer_id"`
	Timeout    time.Duration `yaml:"timeout"`
}

type BrowserConfig struct {
	StartURL string `yaml:"start_url"`
	Bin      string `yaml:"bin"`
	Headless *bool  `yaml:"headless"`
}

type BackendsConfig struct {
	Default    string           `yaml:"default"`
	Native     NativeConfig     `yaml:"native"`
	Structured StructuredConfig `yaml:"structured"`
	ToolCall   ToolCallConfig   `yaml:"toolcall"`
}

type NativeConfig struct {
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
}

type StructuredConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	MaxTokens   int    `yaml:"max_tokens"`
	Screenshots bool   `yaml:"screenshots"`
}

type ToolCallConfig struct {
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	MaxTokens   int    `yaml:"max_tokens"`
	Screenshots bool   `yaml:"screenshots"`
}

type LoopConfig struct {
	SettleDelay     time.Duration `yaml:"settle_delay"`
	DecisionTimeout time.Duration `yaml:"decision_timeout"`
	// CompleteMaxTurns bounds run-to-completion invocations.
	CompleteMaxTurns int  `yaml:"complete_max_turns"`
	ShareDesktop     bool `yaml:"share_desktop"`
	Verbose          bool `yaml:"verbose"`
}

type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxSessions   int           `yaml:"max_sessions"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type TranscriptConfig struct {
	// Dir receives one JSON transcript per finished invocation. Empty disables it.
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: "127.0.0.1:8080"},
		Desktop: DesktopConfig{
			Driver: DriverVM,
			VM:     VMConfig{Timeout: 2 * time.Minute},
			Browser: BrowserConfig{
				StartURL: "about:blank",
			},
		},
		Backends: BackendsConfig{
			Structured: StructuredConfig{Provider: ProviderOpenAI},
		},
		Loop: LoopConfig{
			SettleDelay:      500 * time.Millisecond,
			CompleteMaxTurns: 10,
		},
		Sessions: SessionsConfig{
			TTL:           2 * time.Hour,
			MaxSessions:   1000,
			SweepInterval: time.Minute,
		},
		Telemetry: TelemetryConfig{ServiceName: "deskpilot"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Values from env override the file, then the result is validated.
func Load(ctx context.Context, path string, env environment.Provider) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if env != nil {
		if err := cfg.applyEnv(ctx, env); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills secrets from the environment and applies DESKPILOT_* overrides.
func (c *Config) applyEnv(ctx context.Context, env environment.Provider) error {
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = environment.Lookup(ctx, env, name, "")
		}
	}
	fill(&c.Server.Auth.Secret, environment.JWTSecret)
	fill(&c.Desktop.VM.APIKey, environment.ComputerAPIKey)
	fill(&c.Backends.Native.APIKey, environment.AnthropicAPIKey)
	fill(&c.Backends.ToolCall.APIKey, environment.GroqAPIKey)
	if c.Backends.Structured.Provider == ProviderGemini {
		fill(&c.Backends.Structured.APIKey, environment.GeminiAPIKey)
	} else {
		fill(&c.Backends.Structured.APIKey, environment.OpenAIAPIKey)
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"DESKPILOT_LISTEN", func(v string) error { c.Server.Listen = v; return nil }},
		{"DESKPILOT_DESKTOP_DRIVER", func(v string) error { c.Desktop.Driver = v; return nil }},
		{"DESKPILOT_COMPUTER_ID", func(v string) error { c.Desktop.VM.ComputerID = v; return nil }},
		{"DESKPILOT_DEFAULT_BACKEND", func(v string) error { c.Backends.Default = v; return nil }},
		{"DESKPILOT_DECISION_TIMEOUT", durationSetter(&c.Loop.DecisionTimeout)},
		{"DESKPILOT_SESSION_TTL", durationSetter(&c.Sessions.TTL)},
		{"DESKPILOT_MAX_SESSIONS", func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Sessions.MaxSessions = n
			return nil
		}},
		{"DESKPILOT_TRANSCRIPT_DIR", func(v string) error { c.Transcripts.Dir = v; return nil }},
	}
	for _, o := range overrides {
		v, ok := env.Get(ctx, o.name)
		if !ok {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("invalid %s: %w", o.name, err)
		}
	}
	return nil
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.Auth.Enabled && c.Server.Auth.Secret == "" {
		errs = append(errs, errors.New("server.auth.secret is required when auth is enabled"))
	}

	switch c.Desktop.Driver {
	case DriverVM, DriverBrowser:
	default:
		errs = append(errs, fmt.Errorf("desktop.driver must be %q or %q, got %q", DriverVM, DriverBrowser, c.Desktop.Driver))
	}

	if c.Backends.Default != "" {
		if _, err := backend.ParseKind(c.Backends.Default); err != nil {
			errs = append(errs, fmt.Errorf("backends.default: %w", err))
		}
	}
	switch c.Backends.Structured.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("backends.structured.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Backends.Structured.Provider))
	}

	if c.Loop.SettleDelay < 0 {
		errs = append(errs, errors.New("loop.settle_delay must not be negative"))
	}
	if c.Loop.DecisionTimeout < 0 {
		errs = append(errs, errors.New("loop.decision_timeout must not be negative"))
	}
	if c.Loop.CompleteMaxTurns < 0 {
		errs = append(errs, errors.New("loop.complete_max_turns must not be negative"))
	}
	if c.Sessions.TTL < 0 || c.Sessions.MaxSessions < 0 || c.Sessions.SweepInterval < 0 {
		errs = append(errs, errors.New("sessions limits must not be negative"))
	}

	return errors.Join(errs...)
}

// DefaultBackend returns the configured default kind, or "" to let the
// available backends decide.
func (c *Config) DefaultBackend() backend.Kind {
	k, err := backend.ParseKind(c.Backends.Default)
	if err != nil {
		return ""
	}
	return k
}
