package session

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docker/deskpilot/pkg/backend"
)

var (
	ErrEmptyID             = errors.New("session ID cannot be empty")
	ErrNotFound            = errors.New("session not found")
	ErrInstructionRequired = errors.New("instruction is required to start a session")
)

// Policy decides what happens when a caller references an unknown id.
type Policy int

const (
	// CreateIfMissing starts a new session under the given id.
	CreateIfMissing Policy = iota
	// MustExist fails with ErrNotFound and creates nothing.
	MustExist
)

// Clock returns the current time.
type Clock func() time.Time

type Option func(*Registry)

func WithClock(c Clock) Option {
	return func(r *Registry) { r.now = c }
}

// WithTTL evicts sessions idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithMaxSessions keeps at most n sessions, evicting the least recently
// used idle ones first. Zero means unbounded.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.maxSessions = n }
}

// Registry maps conversation ids to sessions. Running sessions are never
// evicted.
type Registry struct {
	now         Clock
	ttl         time.Duration
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*list.Element
	// recency orders sessions from most to least recently used.
	recency *list.List
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:      time.Now,
		sessions: map[string]*list.Element{},
		recency:  list.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for id. An empty id always creates a new
// session with a generated id. For a known id the instruction is ignored.
// isNew reports whether the session was created by this call.
func (r *Registry) GetOrCreate(id, instruction string, kind backend.Kind, policy Policy) (sess *Session, isNew bool, err error) {
	id = strings.TrimSpace(id)
	instruction = strings.TrimSpace(instruction)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	if id != "" {
		if el, ok := r.sessions[id]; ok {
			r.recency.MoveToFront(el)
			existing := el.Value.(*Session)
			existing.touch()
			return existing, false, nil
		}
		if policy == MustExist {
			return nil, false, ErrNotFound
		}
	} else if policy == MustExist {
		return nil, false, ErrEmptyID
	}

	if instruction == "" {
		return nil, false, ErrInstructionRequired
	}
	if id == "" {
		id = uuid.NewString()
	}

	sess = newSession(id, instruction, kind, r.now)
	r.sessions[id] = r.recency.PushFront(sess)
	r.enforceLimitLocked()

	slog.Debug("Session created", "session_id", id, "backend", kind)
	return sess, true, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	el, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return el.Value.(*Session), nil
}

// Status reads a session without counting as a use.
func (r *Registry) Status(id string) (Status, error) {
	sess, err := r.Get(id)
	if err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts expired sessions and trims the registry to its bound.
// It returns the number of sessions removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *Registry) sweepLocked() int {
	removed := 0
	if r.ttl > 0 {
		now := r.now()
		for el := r.recency.Back(); el != nil; {
			prev := el.Prev()
			sess := el.Value.(*Session)
			if idle, ok := sess.idle(now); ok && idle > r.ttl {
				r.removeLocked(el)
				removed++
			}
			el = prev
		}
	}
	return removed + r.enforceLimitLocked()
}

func (r *Registry) enforceLimitLocked() int {
	if r.maxSessions <= 0 {
		return 0
	}
	removed := 0
	// The front element is the session just used; it always survives.
	front := r.recency.Front()
	for el := r.recency.Back(); el != nil && el != front && len(r.sessions) > r.maxSessions; {
		prev := el.Prev()
		if _, ok := el.Value.(*Session).idle(r.now()); ok {
			r.removeLocked(el)
			removed++
		}
		el = prev
	}
	if len(r.sessions) > r.maxSessions {
		slog.Warn("Session limit exceeded by running sessions", "sessions", len(r.sessions), "max", r.maxSessions)
	}
	return removed
}

func (r *Registry) removeLocked(el *list.Element) {
	sess := r.recency.Remove(el).(*Session)
	delete(r.sessions, sess.ID)
	slog.Debug("Session evicted", "session_id", sess.ID)
}

// Run sweeps the registry every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Info("Evicted idle sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}
