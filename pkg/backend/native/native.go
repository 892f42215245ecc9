// Package native adapts a callback-driven computer-use agent to the
// backend.Conversation interface.
package native

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
)

// Progress is reported by a Runtime after every model response.
type Progress struct {
	Text    string
	Actions []action.Descriptor
}

// Callback receives progress. When Progress carries actions, the callback
// returns their outcomes, in order.
type Callback func(ctx context.Context, p Progress) ([]action.Outcome, error)

type PromptRequest struct {
	Instruction   string
	Model         string
	MaxIterations int
	Callback      Callback
}

// Runtime runs its own observe-decide loop and reports through a callback.
// Prompt returns when the model stops asking for actions, the iteration
// bound is reached, or ctx is done.
type Runtime interface {
	Prompt(ctx context.Context, req PromptRequest) error
}

var errNotObserved = errors.New("previous decision has not been observed")

// Backend exposes a Runtime as a backend.Backend.
type Backend struct {
	rt Runtime
}

var _ backend.Backend = (*Backend)(nil)

func New(rt Runtime) *Backend {
	return &Backend{rt: rt}
}

func (b *Backend) Kind() backend.Kind { return backend.Native }

func (b *Backend) Start(ctx context.Context, req backend.Request) (backend.Conversation, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &conversation{
		cancel: cancel,
		steps:  make(chan step),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		c.err = b.rt.Prompt(ctx, PromptRequest{
			Instruction:   req.Prompt,
			Model:         req.Model,
			MaxIterations: req.MaxTurns,
			Callback:      c.callback,
		})
	}()

	return c, nil
}

type step struct {
	progress Progress
	// reply is nil for text-only progress.
	reply chan []action.Outcome
}

// conversation turns the runtime's callbacks into Next/Observe calls. The
// runtime goroutine blocks inside the callback until Observe answers.
type conversation struct {
	cancel context.CancelFunc
	steps  chan step
	done   chan struct{}
	// err is written before done is closed.
	err error

	mu      sync.Mutex
	pending chan []action.Outcome
}

func (c *conversation) callback(ctx context.Context, p Progress) ([]action.Outcome, error) {
	st := step{progress: p}
	if len(p.Actions) > 0 {
		st.reply = make(chan []action.Outcome, 1)
	}

	select {
	case c.steps <- st:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if st.reply == nil {
		return nil, nil
	}

	select {
	case outcomes := <-st.reply:
		return outcomes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conversation) Next(ctx context.Context) (*backend.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return nil, errNotObserved
	}

	var narrative []string
	for {
		select {
		case st := <-c.steps:
			if text := strings.TrimSpace(st.progress.Text); text != "" {
				narrative = append(narrative, text)
			}
			if st.reply != nil {
				c.pending = st.reply
				return &backend.Decision{
					Narrative: strings.Join(narrative, "\n"),
					Actions:   st.progress.Actions,
				}, nil
			}
		case <-c.done:
			if c.err != nil {
				return nil, c.err
			}
			return &backend.Decision{Narrative: strings.Join(narrative, "\n")}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *conversation) Observe(_ context.Context, outcomes []action.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return errors.New("no decision is waiting for outcomes")
	}
	c.pending <- outcomes
	c.pending = nil
	return nil
}

// Close stops the runtime and waits for it to return.
func (c *conversation) Close() error {
	c.cancel()
	<-c.done
	return nil
}
