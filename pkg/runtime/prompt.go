package runtime

import (
	"fmt"
	"strings"

	"github.com/docker/deskpilot/pkg/session"
)

// maxSummaryEntries caps how much earlier progress is replayed in a prompt.
// The oldest entries are dropped first.
const maxSummaryEntries = 60

// ComposePrompt returns the instruction, followed by a summary of earlier
// turns when there are any.
func ComposePrompt(instruction string, history []session.HistoryEntry) string {
	if len(history) == 0 {
		return instruction
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nProgress made so far on this task. Do not repeat these steps, continue from where they left off:\n")

	if skipped := len(history) - maxSummaryEntries; skipped > 0 {
		fmt.Fprintf(&b, "(%d earlier entries omitted)\n", skipped)
		history = history[skipped:]
	}

	for _, e := range history {
		switch e.Kind {
		case session.NarrativeEntry:
			fmt.Fprintf(&b, "- turn %d, note: %s\n", e.Turn, e.Text)
		case session.ActionEntry:
			if e.Action != nil {
				fmt.Fprintf(&b, "- turn %d, action: %s\n", e.Turn, e.Action)
			}
		case session.ObservationEntry:
			if e.Result != nil {
				fmt.Fprintf(&b, "- turn %d, result: %s\n", e.Turn, e.Result.Summary())
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
