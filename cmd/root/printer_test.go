package root

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/runtime"
)

func sampleEvents() []runtime.Event {
	took := 1500 * time.Microsecond
	result := runtime.ActionResult(1, 0,
		action.Descriptor{Type: action.LeftClick, Coordinate: &[2]int{1, 2}},
		action.Result{Action: action.LeftClick, Text: "Clicked at (1, 2)"})
	result.Duration = &took

	done := runtime.SessionComplete(runtime.ReasonMaxTurns, 1, 3)
	done.Metrics = &runtime.Metrics{Turns: 1, Actions: 2, Failures: 1, Elapsed: 3 * time.Second}

	return []runtime.Event{
		runtime.Screenshot(1, strings.Repeat("A", 4096)),
		runtime.Narrative(1, "opening the menu"),
		runtime.ActionProposed(1, 0, action.Descriptor{Type: action.LeftClick, Coordinate: &[2]int{1, 2}}),
		result,
		runtime.ActionResult(1, 1, action.Descriptor{Type: action.TypeText}, action.Result{Action: action.TypeText, Error: "text is required for type"}),
		runtime.TurnComplete(1, 1, 2),
		runtime.Error("backend went away"),
		done,
	}
}

func TestEventPrinter_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := &eventPrinter{w: &buf}
	for _, ev := range sampleEvents() {
		require.NoError(t, p.print(ev))
	}

	out := buf.String()
	assert.Contains(t, out, "screenshot (3.072kB)")
	assert.Contains(t, out, "opening the menu")
	assert.Contains(t, out, "-> left_click(1, 2)")
	assert.Contains(t, out, "ok Clicked at (1, 2)")
	assert.Contains(t, out, "(2ms)")
	assert.Contains(t, out, "x Error: text is required for type")
	assert.Contains(t, out, "complete, 2 action(s)")
	assert.Contains(t, out, "error: backend went away")
	assert.Contains(t, out, "stopped at the turn limit after 1 turn(s)")
	assert.Contains(t, out, "2 action(s), 1 failed, took 3 seconds")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(sampleEvents()))
}

func TestEventPrinter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := &eventPrinter{w: &buf, json: true}
	for _, ev := range sampleEvents() {
		require.NoError(t, p.print(ev))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(sampleEvents()))

	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "session-complete", last["type"])
	assert.Equal(t, "max_turns", last["reason"])
}
