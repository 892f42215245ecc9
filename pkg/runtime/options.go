package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/deskpilot/pkg/backend"
)

const (
	// DefaultCompleteTurns bounds a run-to-completion invocation.
	DefaultCompleteTurns = 10
	// DefaultSettleDelay is how long the desktop gets to settle after a
	// state-changing action before it is screenshotted again.
	DefaultSettleDelay = 500 * time.Millisecond
)

// Mode selects how many turns an invocation may take.
type Mode string

const (
	// ModeSingle takes exactly one turn.
	ModeSingle Mode = "single"
	// ModeFixed takes up to Policy.MaxTurns turns.
	ModeFixed Mode = "fixed"
	// ModeComplete runs until the backend stops proposing actions or the
	// configured completion bound is hit.
	ModeComplete Mode = "complete"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return "", nil
	case ModeSingle, ModeFixed, ModeComplete:
		return m, nil
	default:
		return "", fmt.Errorf("unknown iteration mode %q", s)
	}
}

// Policy is the caller's iteration policy.
type Policy struct {
	Mode     Mode `json:"mode,omitempty"`
	MaxTurns int  `json:"maxTurns,omitempty"`
}

// Turns resolves the iteration bound for a backend. An empty policy uses
// the backend's own default.
func (p Policy) Turns(kind backend.Kind, completeMax int) int {
	switch p.Mode {
	case ModeSingle:
		return 1
	case ModeFixed:
		if p.MaxTurns > 0 {
			return p.MaxTurns
		}
	case ModeComplete:
		if completeMax > 0 {
			return completeMax
		}
		return DefaultCompleteTurns
	}
	if p.MaxTurns > 0 {
		return p.MaxTurns
	}
	return kind.DefaultMaxTurns()
}

// Options parameterize one invocation of the loop.
type Options struct {
	// MaxTurns bounds the number of decisions. Values < 1 use the
	// backend default.
	MaxTurns int
	// SettleDelay is waited before the screenshot that follows a
	// state-changing action.
	SettleDelay time.Duration
	// Verbose adds per-action durations and run metrics to the stream.
	Verbose bool
	// DecisionTimeout bounds each backend call. Zero means no limit.
	DecisionTimeout time.Duration
	// ShareDesktop skips the desktop-wide lock. Two sessions may then
	// drive the same machine at the same time.
	ShareDesktop bool
	// Backend switches the session to another backend before it starts.
	Backend backend.Kind
	// Model overrides the backend's model for this invocation.
	Model string
}
