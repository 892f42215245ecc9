package session

import (
	"strings"
	"sync"
	"time"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
)

type EntryKind string

const (
	NarrativeEntry   EntryKind = "narrative"
	ActionEntry      EntryKind = "action"
	ObservationEntry EntryKind = "observation"
)

// HistoryEntry is one immutable record of what happened in a session.
//
// Turn is the 1-based turn the entry belongs to: the session's turn count
// when it was recorded, plus one for the turn in progress. It matches the
// turn field of the events published during that turn.
type HistoryEntry struct {
	Turn      int                `json:"turn"`
	Kind      EntryKind          `json:"kind"`
	Text      string             `json:"text,omitempty"`
	Action    *action.Descriptor `json:"action,omitempty"`
	Result    *action.Result     `json:"result,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Status is a read-only view of a session.
type Status struct {
	ID            string       `json:"id"`
	Instruction   string       `json:"instruction"`
	Backend       backend.Kind `json:"backend"`
	Model         string       `json:"model,omitempty"`
	Running       bool         `json:"running"`
	TurnCount     int          `json:"turnCount"`
	HistoryLength int          `json:"historyLength"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Session is one conversation. Its history and turn counter are only
// mutated by the holder of the running flag, see TryStart.
type Session struct {
	ID          string
	Instruction string
	CreatedAt   time.Time

	now func() time.Time

	mu        sync.Mutex
	backend   backend.Kind
	model     string
	running   bool
	turnCount int
	history   []HistoryEntry
	lastUsed  time.Time
}

func newSession(id, instruction string, kind backend.Kind, now func() time.Time) *Session {
	t := now()
	return &Session{
		ID:          id,
		Instruction: instruction,
		CreatedAt:   t,
		now:         now,
		backend:     kind,
		lastUsed:    t,
	}
}

// TryStart flips the session to running. It returns false, and changes
// nothing, when an invocation already holds the session. A non-empty kind
// switches the session's backend in the same step. The backend kind returned
// is the one the invocation must use until Finish.
func (s *Session) TryStart(kind backend.Kind) (backend.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return "", false
	}
	if kind != "" {
		s.backend = kind
	}
	s.running = true
	s.lastUsed = s.now()
	return s.backend, true
}

// Finish releases the running flag. It is safe to call more than once.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.lastUsed = s.now()
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) Backend() backend.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// SetBackend changes the backend for the next invocation. A running
// invocation keeps the kind it started with.
func (s *Session) SetBackend(kind backend.Kind) {
	if kind == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = kind
}

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) SetModel(model string) {
	if model == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// CompleteTurn increments the turn counter and returns the new value.
func (s *Session) CompleteTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCount++
	return s.turnCount
}

func (s *Session) AddNarrative(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.append(HistoryEntry{Kind: NarrativeEntry, Text: text})
}

func (s *Session) AddAction(d action.Descriptor) {
	s.append(HistoryEntry{Kind: ActionEntry, Action: &d})
}

// AddObservation records a result. Screenshot data is not retained.
func (s *Session) AddObservation(r action.Result) {
	r = r.WithoutImage()
	s.append(HistoryEntry{Kind: ObservationEntry, Result: &r})
}

func (s *Session) append(e HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// turnCount only advances once the turn completes.
	e.Turn = s.turnCount + 1
	e.Timestamp = s.now()
	s.history = append(s.history, e)
}

// History returns a copy of the history.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		ID:            s.ID,
		Instruction:   s.Instruction,
		Backend:       s.backend,
		Model:         s.model,
		Running:       s.running,
		TurnCount:     s.turnCount,
		HistoryLength: len(s.history),
		CreatedAt:     s.CreatedAt,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
}

// idle reports whether the session can be evicted and for how long it has
// not been used.
func (s *Session) idle(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return 0, false
	}
	return now.Sub(s.lastUsed), true
}
