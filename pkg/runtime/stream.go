package runtime

import (
	"sync"
	"time"
)

// Stream delivers the events of one invocation to a single consumer.
//
// Events is unbuffered: every publish waits for the consumer, so events
// arrive in emission order and nothing queues up. Once the consumer calls
// Detach, publishing becomes a no-op and the invocation carries on alone.
// Events is closed after the terminal event.
type Stream struct {
	sessionID string
	now       func() time.Time

	events   chan Event
	detached chan struct{}
	detach   sync.Once
	done     chan struct{}

	// seq is only touched by the publishing goroutine.
	seq int
}

func newStream(sessionID string, now func() time.Time) *Stream {
	return &Stream{
		sessionID: sessionID,
		now:       now,
		events:    make(chan Event),
		detached:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Stream) SessionID() string { return s.sessionID }

func (s *Stream) Events() <-chan Event { return s.events }

// Detach stops delivery. It is safe to call more than once and from any goroutine.
func (s *Stream) Detach() {
	s.detach.Do(func() { close(s.detached) })
}

// Detached is closed once Detach has been called.
func (s *Stream) Detached() <-chan struct{} { return s.detached }

// Done is closed once the invocation has finished and released its lock.
func (s *Stream) Done() <-chan struct{} { return s.done }

// publish stamps ev and hands it to the consumer. It reports whether the
// event was delivered.
func (s *Stream) publish(ev Event) bool {
	s.seq++
	ev.stamp(s.seq, s.sessionID, s.now())

	select {
	case <-s.detached:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.detached:
		return false
	}
}

func (s *Stream) finish() {
	close(s.events)
	close(s.done)
}
