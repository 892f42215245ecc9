package root

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/config"
)

func TestNewBackends(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backends.Native.APIKey = "anthropic"
	cfg.Backends.ToolCall.APIKey = "groq"

	set, err := newBackends(t.Context(), cfg.Backends)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Equal(t, backend.Native, set.Default())

	kind, err := defaultBackend(cfg, set)
	require.NoError(t, err)
	assert.Equal(t, backend.Native, kind)

	cfg.Backends.Default = "structured"
	_, err = defaultBackend(cfg, set)
	require.ErrorIs(t, err, backend.ErrUnknownKind)

	cfg.Backends.Default = "toolcall"
	kind, err = defaultBackend(cfg, set)
	require.NoError(t, err)
	assert.Equal(t, backend.ToolCall, kind)
}

func TestNewBackends_StructuredOpenAI(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backends.Structured.APIKey = "openai"

	set, err := newBackends(t.Context(), cfg.Backends)
	require.NoError(t, err)
	_, err = set.Get(backend.Structured)
	require.NoError(t, err)
}

func TestNewBackends_NoneConfigured(t *testing.T) {
	t.Parallel()

	_, err := newBackends(t.Context(), config.Default().Backends)
	require.ErrorIs(t, err, errNoBackend)
}

func TestVersionCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(t.Context(), &out, &errOut, "version")
	require.Equal(t, 0, code, errOut.String())
	assert.True(t, strings.HasPrefix(out.String(), "deskpilot "))
}

func TestRunCommand_RejectsBadMode(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(t.Context(), &out, &errOut, "run", "--mode", "forever", "do something")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "unknown iteration mode")
}
