// Package backendtest provides a scripted backend for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
)

// Step is one scripted reply to Next.
type Step struct {
	Decision backend.Decision
	Err      error
	// Panic makes Next panic with this value.
	Panic any
	// Block makes Next wait until the channel is closed.
	Block <-chan struct{}
}

// Scripted replays Steps across conversations. Once the script is exhausted
// every Next returns an empty decision.
type Scripted struct {
	kind backend.Kind

	mu       sync.Mutex
	steps    []Step
	requests []backend.Request
	observed [][]action.Outcome
	closed   int
}

func New(kind backend.Kind, steps ...Step) *Scripted {
	return &Scripted{kind: kind, steps: steps}
}

// Actions is a shorthand for a step proposing actions.
func Actions(narrative string, actions ...action.Descriptor) Step {
	return Step{Decision: backend.Decision{Narrative: narrative, Actions: actions}}
}

func (s *Scripted) Kind() backend.Kind { return s.kind }

func (s *Scripted) Start(_ context.Context, req backend.Request) (backend.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return &conversation{s: s}, nil
}

func (s *Scripted) Requests() []backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Request(nil), s.requests...)
}

func (s *Scripted) Observed() [][]action.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]action.Outcome(nil), s.observed...)
}

func (s *Scripted) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scripted) next() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return Step{}, false
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step, true
}

type conversation struct {
	s *Scripted
}

func (c *conversation) Next(ctx context.Context) (*backend.Decision, error) {
	step, ok := c.s.next()
	if !ok {
		return &backend.Decision{}, nil
	}
	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	d := step.Decision
	return &d, nil
}

func (c *conversation) Observe(_ context.Context, outcomes []action.Outcome) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.observed = append(c.s.observed, outcomes)
	return nil
}

func (c *conversation) Close() error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.closed++
	return nil
}
