package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/session"
)

func TestPolicyTurns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policy      runtime.Policy
		kind        backend.Kind
		completeMax int
		want        int
	}{
		{name: "empty native", kind: backend.Native, want: 1},
		{name: "empty structured", kind: backend.Structured, want: 5},
		{name: "empty toolcall", kind: backend.ToolCall, want: 10},
		{name: "single", policy: runtime.Policy{Mode: runtime.ModeSingle, MaxTurns: 7}, kind: backend.ToolCall, want: 1},
		{name: "fixed", policy: runtime.Policy{Mode: runtime.ModeFixed, MaxTurns: 3}, kind: backend.Native, want: 3},
		{name: "fixed without bound", policy: runtime.Policy{Mode: runtime.ModeFixed}, kind: backend.Structured, want: 5},
		{name: "complete default", policy: runtime.Policy{Mode: runtime.ModeComplete}, kind: backend.Native, want: 10},
		{name: "complete configured", policy: runtime.Policy{Mode: runtime.ModeComplete}, kind: backend.Native, completeMax: 25, want: 25},
		{name: "bare max turns", policy: runtime.Policy{MaxTurns: 4}, kind: backend.Native, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.policy.Turns(tt.kind, tt.completeMax))
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := runtime.ParseMode(" Fixed ")
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeFixed, m)

	m, err = runtime.ParseMode("")
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = runtime.ParseMode("forever")
	require.Error(t, err)
}

func TestComposePrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "open the browser", runtime.ComposePrompt("open the browser", nil))

	d := action.Descriptor{Type: action.LeftClick, Coordinate: &[2]int{3, 4}}
	r := action.Result{Action: action.LeftClick, Text: "Clicked at (3, 4)"}
	failed := action.Result{Action: action.Key, Error: "no keyboard"}
	history := []session.HistoryEntry{
		{Turn: 1, Kind: session.NarrativeEntry, Text: "Clicking the icon"},
		{Turn: 1, Kind: session.ActionEntry, Action: &d},
		{Turn: 1, Kind: session.ObservationEntry, Result: &r},
		{Turn: 2, Kind: session.ObservationEntry, Result: &failed},
	}

	got := runtime.ComposePrompt("open the browser", history)

	assert.Equal(t, `open the browser

Progress made so far on this task. Do not repeat these steps, continue from where they left off:
- turn 1, note: Clicking the icon
- turn 1, action: left_click(3, 4)
- turn 1, result: Clicked at (3, 4)
- turn 2, result: Error: no keyboard`, got)
}

func TestComposePrompt_TruncatesOldEntries(t *testing.T) {
	t.Parallel()

	var history []session.HistoryEntry
	for i := range 100 {
		history = append(history, session.HistoryEntry{Turn: i + 1, Kind: session.NarrativeEntry, Text: "step"})
	}

	got := runtime.ComposePrompt("x", history)
	assert.Contains(t, got, "(40 earlier entries omitted)")
	assert.NotContains(t, got, "turn 40,")
	assert.Contains(t, got, "turn 41,")
}
