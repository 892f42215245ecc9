package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/environment"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deskpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.Context(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, DriverVM, cfg.Desktop.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Loop.SettleDelay)
	assert.Equal(t, 10, cfg.Loop.CompleteMaxTurns)
	assert.Equal(t, backend.Kind(""), cfg.DefaultBackend())
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  listen: ":9000"
desktop:
  driver: browser
  browser:
    start_url: https://example.com
backends:
  default: gemini
  structured:
    provider: gemini
    model: gemini-2.5-pro
loop:
  settle_delay: 250ms
  decision_timeout: 45s
sessions:
  ttl: 30m
  max_sessions: 10
`)

	cfg, err := Load(t.Context(), path, environment.NewMapProvider(map[string]string{
		environment.GeminiAPIKey: "gem-key",
		environment.OpenAIAPIKey: "openai-key",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, DriverBrowser, cfg.Desktop.Driver)
	assert.Equal(t, "https://example.com", cfg.Desktop.Browser.StartURL)
	assert.Equal(t, backend.Structured, cfg.DefaultBackend())
	assert.Equal(t, "gem-key", cfg.Backends.Structured.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Loop.SettleDelay)
	assert.Equal(t, 45*time.Second, cfg.Loop.DecisionTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, 10, cfg.Sessions.MaxSessions)
	// untouched defaults survive
	assert.Equal(t, time.Minute, cfg.Sessions.SweepInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
backends:
  native:
    api_key: from-file
`)
	env := environment.NewMapProvider(map[string]string{
		environment.AnthropicAPIKey:  "from-env",
		environment.GroqAPIKey:       "groq",
		"DESKPILOT_LISTEN":           ":7000",
		"DESKPILOT_MAX_SESSIONS":     "3",
		"DESKPILOT_DECISION_TIMEOUT": "2m",
	})

	cfg, err := Load(t.Context(), path, env)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Backends.Native.APIKey)
	assert.Equal(t, "groq", cfg.Backends.ToolCall.APIKey)
	assert.Equal(t, ":7000", cfg.Server.Listen)
	assert.Equal(t, 3, cfg.Sessions.MaxSessions)
	assert.Equal(t, 2*time.Minute, cfg.Loop.DecisionTimeout)

	_, err = Load(t.Context(), path, environment.NewMapProvider(map[string]string{"DESKPILOT_MAX_SESSIONS": "lots"}))
	require.ErrorContains(t, err, "DESKPILOT_MAX_SESSIONS")
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown field", content: "serverr: {}\n", wantErr: "failed to parse"},
		{name: "bad driver", content: "desktop:\n  driver: vnc\n", wantErr: "desktop.driver"},
		{name: "bad backend", content: "backends:\n  default: mystery\n", wantErr: "backends.default"},
		{name: "bad provider", content: "backends:\n  structured:\n    provider: bedrock\n", wantErr: "backends.structured.provider"},
		{name: "auth without secret", content: "server:\n  auth:\n    enabled: true\n", wantErr: "server.auth.secret"},
		{name: "negative delay", content: "loop:\n  settle_delay: -1s\n", wantErr: "loop.settle_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(t.Context(), writeConfig(t, tt.content), environment.NewMapProvider(nil))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := Load(t.Context(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.ErrorContains(t, err, "failed to read config file")
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "loop:\n  verbose: false\n")
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	w.delay = 10 * time.Millisecond
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c *Config) { reloaded <- c }) }()

	// an invalid change is ignored
	require.NoError(t, os.WriteFile(path, []byte("desktop:\n  driver: nope\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("loop:\n  verbose: true\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.True(t, cfg.Loop.Verbose)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
