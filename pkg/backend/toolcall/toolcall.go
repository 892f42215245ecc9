// Package toolcall implements the backend that drives an OpenAI-compatible
// chat model through function calls, keeping the native message history
// for the whole invocation.
package toolcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
)

const (
	DefaultBaseURL   = "https://api.groq.com/openai/v1"
	DefaultModel     = "llama-3.3-70b-versatile"
	DefaultMaxTokens = 4096

	// invalidArguments marks a tool call whose arguments could not be
	// decoded. The executor reports it as unsupported.
	invalidArguments action.Type = "invalid_arguments"

	systemPrompt = "You control an Ubuntu 22.04 desktop with a 1024x768 display through the computer_action function. " +
		"Call it as many times as needed, one action per call. Stop calling functions once the task is complete."
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// Screenshots sends screenshots back as images. Only enable it for
	// models that accept images.
	Screenshots bool
}

type Backend struct {
	client      openai.Client
	model       string
	maxTokens   int
	screenshots bool
	tool        openai.ChatCompletionToolUnionParam
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	s, err := action.Schema()
	if err != nil {
		return nil, err
	}
	params, err := action.SchemaMap(s)
	if err != nil {
		return nil, err
	}

	return &Backend{
		client:      openai.NewClient(option.WithAPIKey(cfg.APIKey), option.WithBaseURL(cfg.BaseURL)),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		screenshots: cfg.Screenshots,
		tool: openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        action.ToolName,
			Description: openai.String(action.ToolDescription),
			Parameters:  shared.FunctionParameters(params),
		}),
	}, nil
}

func (b *Backend) Kind() backend.Kind { return backend.ToolCall }

func (b *Backend) Start(_ context.Context, req backend.Request) (backend.Conversation, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}
	return &conversation{
		backend: b,
		model:   model,
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(req.Prompt),
		},
	}, nil
}

type conversation struct {
	backend  *Backend
	model    string
	messages []openai.ChatCompletionMessageParamUnion
	// pending are the tool calls of the last assistant message.
	pending []action.Descriptor
}

func (c *conversation) Next(ctx context.Context) (*backend.Decision, error) {
	if len(c.pending) > 0 {
		return nil, errors.New("previous tool calls have not been answered")
	}

	resp, err := c.backend.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		Messages:  c.messages,
		Tools:     []openai.ChatCompletionToolUnionParam{c.backend.tool},
		MaxTokens: openai.Int(int64(c.backend.maxTokens)),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	c.messages = append(c.messages, msg.ToParam())

	decision := &backend.Decision{Narrative: msg.Content}
	for _, tc := range msg.ToolCalls {
		d, err := action.Parse([]byte(tc.Function.Arguments))
		if err != nil {
			slog.Warn("Discarding tool call with invalid arguments", "tool_call_id", tc.ID, "error", err)
			d = action.Descriptor{Type: invalidArguments}
		}
		d.ToolCallID = tc.ID
		decision.Actions = append(decision.Actions, d)
	}
	c.pending = decision.Actions

	return decision, nil
}

// Observe answers every pending tool call. Outcomes are paired with calls
// by position, since providers may repeat or omit call ids.
func (c *conversation) Observe(_ context.Context, outcomes []action.Outcome) error {
	var screen string
	for i, d := range c.pending {
		res := action.Result{Action: d.Type, Error: "action was not executed"}
		if i < len(outcomes) {
			res = outcomes[i].Result
		}
		if res.Image != "" {
			screen = res.Image
		}
		c.messages = append(c.messages, openai.ToolMessage(res.Summary(), d.ToolCallID))
	}
	c.pending = nil

	if c.backend.screenshots && screen != "" {
		c.messages = append(c.messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart("Current screen:"),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/png;base64," + screen,
			}),
		}))
	}
	return nil
}

func (c *conversation) Close() error { return nil }
