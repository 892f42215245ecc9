// Package backend defines the contract shared by the decision backends: the
// components that look at the desktop and propose the next actions.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/deskpilot/pkg/action"
)

type Kind string

const (
	// Native delegates to a model with built-in computer use.
	Native Kind = "native"
	// Structured asks a chat model for a JSON object of actions.
	Structured Kind = "structured"
	// ToolCall asks a chat model for function calls.
	ToolCall Kind = "toolcall"
)

var Kinds = []Kind{Native, Structured, ToolCall}

var ErrUnknownKind = errors.New("unknown backend")

// ParseKind accepts the canonical names plus the provider aliases older
// clients send.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "anthropic", "claude":
		return Native, nil
	case "structured", "json", "gemini":
		return Structured, nil
	case "toolcall", "tool_call", "tools", "groq", "openai":
		return ToolCall, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// DefaultMaxTurns is the iteration bound used when the caller doesn't pick one.
func (k Kind) DefaultMaxTurns() int {
	switch k {
	case Native:
		return 1
	case Structured:
		return 5
	default:
		return 10
	}
}

// Request starts one invocation.
type Request struct {
	SessionID   string
	Instruction string
	// Prompt is the instruction plus the rendered summary of earlier turns.
	Prompt string
	// Model overrides the backend's configured model.
	Model string
	// MaxTurns is the loop's bound, for backends that run their own loop.
	MaxTurns int
}

// Decision is what a backend wants to do next. No actions means done.
type Decision struct {
	Narrative string
	Actions   []action.Descriptor
}

func (d *Decision) Done() bool {
	return d == nil || len(d.Actions) == 0
}

// Backend creates conversations.
type Backend interface {
	Kind() Kind
	Start(ctx context.Context, req Request) (Conversation, error)
}

// Conversation is one invocation's dialogue with a model. Next and Observe
// alternate: every non-empty decision is followed by exactly one Observe
// carrying the outcomes of its actions, in order.
type Conversation interface {
	Next(ctx context.Context) (*Decision, error)
	Observe(ctx context.Context, outcomes []action.Outcome) error
	Close() error
}

// Set holds the configured backends by kind.
type Set map[Kind]Backend

func NewSet(backends ...Backend) Set {
	s := Set{}
	for _, b := range backends {
		if b != nil {
			s[b.Kind()] = b
		}
	}
	return s
}

func (s Set) Get(kind Kind) (Backend, error) {
	b, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", ErrUnknownKind, kind)
	}
	return b, nil
}

// Default returns the first configured kind in Kinds order.
func (s Set) Default() Kind {
	for _, k := range Kinds {
		if _, ok := s[k]; ok {
			return k
		}
	}
	return ""
}
