package root

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/docker/deskpilot/pkg/runtime"
)

// text colors
var (
	blue   = color.New(color.FgBlue).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	gray   = color.New(color.FgHiBlack).SprintfFunc()
)

var bold = color.New(color.Bold).SprintfFunc()

// eventPrinter renders a session's events for a terminal, or as JSON lines.
type eventPrinter struct {
	w    io.Writer
	json bool
}

func (p *eventPrinter) print(ev runtime.Event) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(ev)
	}

	var line string
	switch e := ev.(type) {
	case *runtime.ScreenshotEvent:
		size := units.HumanSize(float64(base64.StdEncoding.DecodedLen(len(e.Image))))
		line = gray("[turn %d] screenshot (%s)", e.Turn, size)
	case *runtime.NarrativeEvent:
		line = blue("[turn %d] ", e.Turn) + e.Text
	case *runtime.ActionProposedEvent:
		line = yellow("  -> %s", e.Action)
	case *runtime.ActionResultEvent:
		line = resultLine(e)
	case *runtime.TurnCompleteEvent:
		line = gray("[turn %d] complete, %d action(s)", e.Turn, e.Actions)
	case *runtime.ErrorEvent:
		line = red("error: %s", e.Error)
	case *runtime.SessionCompleteEvent:
		line = completeLine(e)
	default:
		line = string(ev.GetType())
	}

	_, err := fmt.Fprintln(p.w, line)
	return err
}

func resultLine(e *runtime.ActionResultEvent) string {
	var took string
	if e.Duration != nil {
		took = gray(" (%s)", e.Duration.Round(time.Millisecond))
	}
	if e.Result.Failed() {
		return red("  x %s", e.Result.Summary()) + took
	}
	return green("  ok %s", e.Result.Summary()) + took
}

func completeLine(e *runtime.SessionCompleteEvent) string {
	reason := "finished"
	if e.Reason == runtime.ReasonMaxTurns {
		reason = "stopped at the turn limit"
	}
	line := bold("Session %s %s after %d turn(s)", e.SessionID, reason, e.TurnCount)
	if m := e.Metrics; m != nil {
		line += gray(", %d action(s), %d failed, took %s", m.Actions, m.Failures, units.HumanDuration(m.Elapsed))
	}
	return line
}
