package runtime

import (
	"time"

	"github.com/docker/deskpilot/pkg/action"
)

type EventType string

const (
	ScreenshotType      EventType = "screenshot"
	NarrativeType       EventType = "narrative"
	ActionProposedType  EventType = "action-proposed"
	ActionResultType    EventType = "action-result"
	TurnCompleteType    EventType = "turn-complete"
	ErrorType           EventType = "error"
	SessionCompleteType EventType = "session-complete"
)

// Event is one entry of an invocation's event stream.
type Event interface {
	GetType() EventType
	GetHeader() Header
	stamp(seq int, sessionID string, at time.Time)
}

// Header is common to every event. Seq is 1-based and follows emission order.
type Header struct {
	Type      EventType `json:"type"`
	Seq       int       `json:"seq"`
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"timestamp"`
}

func (h *Header) GetType() EventType { return h.Type }
func (h *Header) GetHeader() Header  { return *h }

func (h *Header) stamp(seq int, sessionID string, at time.Time) {
	h.Seq = seq
	h.SessionID = sessionID
	h.Time = at
}

// IsTerminal reports whether ev ends a stream.
func IsTerminal(ev Event) bool {
	t := ev.GetType()
	return t == ErrorType || t == SessionCompleteType
}

type ScreenshotEvent struct {
	Header
	Turn  int    `json:"turn"`
	Image string `json:"image"`
}

func Screenshot(turn int, image string) Event {
	return &ScreenshotEvent{Header: Header{Type: ScreenshotType}, Turn: turn, Image: image}
}

type NarrativeEvent struct {
	Header
	Turn int    `json:"turn"`
	Text string `json:"text"`
}

func Narrative(turn int, text string) Event {
	return &NarrativeEvent{Header: Header{Type: NarrativeType}, Turn: turn, Text: text}
}

type ActionProposedEvent struct {
	Header
	Turn   int               `json:"turn"`
	Index  int               `json:"index"`
	Action action.Descriptor `json:"action"`
}

func ActionProposed(turn, index int, d action.Descriptor) Event {
	return &ActionProposedEvent{Header: Header{Type: ActionProposedType}, Turn: turn, Index: index, Action: d}
}

type ActionResultEvent struct {
	Header
	Turn     int               `json:"turn"`
	Index    int               `json:"index"`
	Action   action.Descriptor `json:"action"`
	Result   action.Result     `json:"result"`
	Duration *time.Duration    `json:"durationNs,omitempty"`
}

func ActionResult(turn, index int, d action.Descriptor, res action.Result) *ActionResultEvent {
	return &ActionResultEvent{Header: Header{Type: ActionResultType}, Turn: turn, Index: index, Action: d, Result: res}
}

type TurnCompleteEvent struct {
	Header
	Turn      int `json:"turn"`
	TurnCount int `json:"turnCount"`
	Actions   int `json:"actions"`
}

func TurnComplete(turn, turnCount, actions int) Event {
	return &TurnCompleteEvent{Header: Header{Type: TurnCompleteType}, Turn: turn, TurnCount: turnCount, Actions: actions}
}

type ErrorEvent struct {
	Header
	Error string `json:"error"`
}

func Error(msg string) Event {
	return &ErrorEvent{Header: Header{Type: ErrorType}, Error: msg}
}

// CompletionReason tells why an invocation ended normally.
type CompletionReason string

const (
	// ReasonDone means the backend proposed no further actions.
	ReasonDone CompletionReason = "done"
	// ReasonMaxTurns means the iteration bound was reached.
	ReasonMaxTurns CompletionReason = "max_turns"
)

// Metrics summarize one invocation. Only reported when Options.Verbose is set.
type Metrics struct {
	Turns    int           `json:"turns"`
	Actions  int           `json:"actions"`
	Failures int           `json:"failures"`
	Elapsed  time.Duration `json:"elapsedNs"`
}

type SessionCompleteEvent struct {
	Header
	Reason        CompletionReason `json:"reason"`
	TurnCount     int              `json:"turnCount"`
	HistoryLength int              `json:"historyLength"`
	Metrics       *Metrics         `json:"metrics,omitempty"`
}

func SessionComplete(reason CompletionReason, turnCount, historyLength int) *SessionCompleteEvent {
	return &SessionCompleteEvent{
		Header:        Header{Type: SessionCompleteType},
		Reason:        reason,
		TurnCount:     turnCount,
		HistoryLength: historyLength,
	}
}
