package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/desktop"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096

	systemPrompt = "You control an Ubuntu 22.04 desktop through the computer tool. " +
		"Take a screenshot when you need to see the screen, act step by step and stop calling tools once the task is done."
)

type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AnthropicRuntime implements Runtime with the computer-use beta tool.
type AnthropicRuntime struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

var _ Runtime = (*AnthropicRuntime)(nil)

func NewAnthropicRuntime(cfg AnthropicConfig) (*AnthropicRuntime, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	rt := &AnthropicRuntime{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if rt.model == "" {
		rt.model = DefaultModel
	}
	if rt.maxTokens <= 0 {
		rt.maxTokens = DefaultMaxTokens
	}
	return rt, nil
}

func (r *AnthropicRuntime) Prompt(ctx context.Context, req PromptRequest) error {
	model := req.Model
	if model == "" {
		model = r.model
	}
	maxIterations := max(req.MaxIterations, 1)

	messages := []anthropic.BetaMessageParam{{
		Role:    anthropic.BetaMessageParamRoleUser,
		Content: []anthropic.BetaContentBlockParamUnion{{OfText: &anthropic.BetaTextBlockParam{Text: req.Instruction}}},
	}}

	for iteration := range maxIterations {
		resp, err := r.client.Beta.Messages.New(ctx, anthropic.BetaMessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(r.maxTokens),
			System:    []anthropic.BetaTextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools: []anthropic.BetaToolUnionParam{{
				OfComputerUseTool20250124: &anthropic.BetaToolComputerUse20250124Param{
					DisplayWidthPx:  desktop.DisplayWidth,
					DisplayHeightPx: desktop.DisplayHeight,
					DisplayNumber:   anthropic.Int(1),
				},
			}},
			Betas: []anthropic.AnthropicBeta{anthropic.AnthropicBetaComputerUse2025_01_24},
		})
		if err != nil {
			return fmt.Errorf("anthropic messages: %w", err)
		}
		messages = append(messages, resp.ToParam())

		progress, err := progressFrom(resp)
		if err != nil {
			return err
		}
		slog.Debug("Computer-use response", "iteration", iteration, "actions", len(progress.Actions), "stop_reason", resp.StopReason)

		outcomes, err := req.Callback(ctx, progress)
		if err != nil {
			return err
		}
		if len(progress.Actions) == 0 {
			return nil
		}

		messages = append(messages, anthropic.BetaMessageParam{
			Role:    anthropic.BetaMessageParamRoleUser,
			Content: toolResults(progress.Actions, outcomes),
		})
	}

	return nil
}

func progressFrom(resp *anthropic.BetaMessage) (Progress, error) {
	var (
		p     Progress
		texts []string
	)
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.BetaTextBlock:
			texts = append(texts, b.Text)
		case anthropic.BetaToolUseBlock:
			input, err := json.Marshal(b.Input)
			if err != nil {
				return Progress{}, fmt.Errorf("encoding tool input: %w", err)
			}
			d, err := action.Parse(input)
			if err != nil {
				return Progress{}, err
			}
			d.ToolCallID = b.ID
			p.Actions = append(p.Actions, d)
		}
	}
	p.Text = strings.Join(texts, "\n")
	return p, nil
}

// toolResults answers every tool use, including any the callback did not
// report an outcome for. Outcomes are in the order of actions.
func toolResults(actions []action.Descriptor, outcomes []action.Outcome) []anthropic.BetaContentBlockParamUnion {
	blocks := make([]anthropic.BetaContentBlockParamUnion, 0, len(actions))
	for i, a := range actions {
		res := action.Result{Action: a.Type, Error: "action was not executed"}
		if i < len(outcomes) {
			res = outcomes[i].Result
		}

		block := &anthropic.BetaToolResultBlockParam{ToolUseID: a.ToolCallID}
		switch {
		case res.Failed():
			block.IsError = anthropic.Bool(true)
			block.Content = []anthropic.BetaToolResultBlockParamContentUnion{
				{OfText: &anthropic.BetaTextBlockParam{Text: res.Error}},
			}
		case res.Image != "":
			block.Content = []anthropic.BetaToolResultBlockParamContentUnion{{
				OfImage: &anthropic.BetaImageBlockParam{
					Source: anthropic.BetaImageBlockParamSourceUnion{
						OfBase64: &anthropic.BetaBase64ImageSourceParam{
							Data:      res.Image,
							MediaType: anthropic.BetaBase64ImageSourceMediaType("image/png"),
						},
					},
				},
			}}
		default:
			block.Content = []anthropic.BetaToolResultBlockParamContentUnion{
				{OfText: &anthropic.BetaTextBlockParam{Text: res.Summary()}},
			}
		}
		blocks = append(blocks, anthropic.BetaContentBlockParamUnion{OfToolResult: block})
	}
	return blocks
}
