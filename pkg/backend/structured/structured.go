// Package structured implements the backend that asks a chat model for a
// JSON object listing the next actions.
package structured

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
)

// ErrMalformedDecision is returned when the model's reply is not a valid
// action batch. It aborts the invocation.
var ErrMalformedDecision = errors.New("malformed decision")

const systemPrompt = "You control an Ubuntu 22.04 desktop with a 1024x768 display. " +
	"Reply only with a JSON object of the form {\"actions\": [...], \"reasoning\": \"...\"}. " +
	"Each action has an \"action\" field (screenshot, left_click, right_click, double_click, type, key, scroll, wait) " +
	"and the fields it needs: coordinate [x, y], text, scroll_direction, scroll_amount or duration. " +
	"Take action instead of waiting. Return an empty actions list once the task is complete."

// Prompt is one model call.
type Prompt struct {
	Model  string
	System string
	Text   string
	// Image is an optional base64 PNG of the current screen.
	Image string
}

// Driver performs a JSON-constrained completion and returns the raw text.
type Driver interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

type Option func(*Backend)

// WithScreenshots attaches the latest screenshot to each call. Only enable
// it for models that accept images.
func WithScreenshots(enabled bool) Option {
	return func(b *Backend) { b.screenshots = enabled }
}

type Backend struct {
	driver      Driver
	screenshots bool
}

var _ backend.Backend = (*Backend)(nil)

func New(driver Driver, opts ...Option) *Backend {
	b := &Backend{driver: driver}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Kind() backend.Kind { return backend.Structured }

func (b *Backend) Start(_ context.Context, req backend.Request) (backend.Conversation, error) {
	return &conversation{backend: b, req: req}, nil
}

type conversation struct {
	backend *Backend
	req     backend.Request

	observations []string
	screen       string
}

func (c *conversation) Next(ctx context.Context) (*backend.Decision, error) {
	p := Prompt{
		Model:  c.req.Model,
		System: systemPrompt,
		Text:   c.prompt(),
	}
	if c.backend.screenshots {
		p.Image = c.screen
	}

	text, err := c.backend.driver.Complete(ctx, p)
	if err != nil {
		return nil, err
	}

	batch, err := action.ParseBatch([]byte(stripFences(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDecision, err)
	}
	return &backend.Decision{Narrative: batch.Reasoning, Actions: batch.Actions}, nil
}

func (c *conversation) prompt() string {
	if len(c.observations) == 0 {
		return c.req.Prompt
	}
	var sb strings.Builder
	sb.WriteString(c.req.Prompt)
	sb.WriteString("\n\nActions already taken in this run and their results:\n")
	for i, o := range c.observations {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, o)
	}
	sb.WriteString("\nPropose the next actions.")
	return sb.String()
}

func (c *conversation) Observe(_ context.Context, outcomes []action.Outcome) error {
	for _, o := range outcomes {
		c.observations = append(c.observations, o.Action.String()+": "+o.Result.Summary())
		if o.Result.Image != "" {
			c.screen = o.Result.Image
		}
	}
	return nil
}

func (c *conversation) Close() error { return nil }

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
