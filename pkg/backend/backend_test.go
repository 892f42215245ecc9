package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/backend/backendtest"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want backend.Kind
	}{
		{"native", backend.Native},
		{"Anthropic", backend.Native},
		{"structured", backend.Structured},
		{"toolcall", backend.ToolCall},
		{" groq ", backend.ToolCall},
	}
	for _, tt := range tests {
		got, err := backend.ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := backend.ParseKind("cerebras")
	require.ErrorIs(t, err, backend.ErrUnknownKind)
}

func TestDefaultMaxTurns(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, backend.Native.DefaultMaxTurns())
	assert.Equal(t, 5, backend.Structured.DefaultMaxTurns())
	assert.Equal(t, 10, backend.ToolCall.DefaultMaxTurns())
}

func TestSet(t *testing.T) {
	t.Parallel()

	set := backend.NewSet(backendtest.New(backend.ToolCall), nil, backendtest.New(backend.Structured))

	assert.Equal(t, backend.Structured, set.Default())

	b, err := set.Get(backend.ToolCall)
	require.NoError(t, err)
	assert.Equal(t, backend.ToolCall, b.Kind())

	_, err = set.Get(backend.Native)
	require.ErrorIs(t, err, backend.ErrUnknownKind)
}

func TestDecisionDone(t *testing.T) {
	t.Parallel()

	var nilDecision *backend.Decision
	assert.True(t, nilDecision.Done())
	assert.True(t, (&backend.Decision{Narrative: "all done"}).Done())
}
