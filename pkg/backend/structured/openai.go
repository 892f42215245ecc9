package structured

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/docker/deskpilot/pkg/action"
)

const batchSchemaName = "computer_actions"

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIDriver uses response_format=json_schema on any OpenAI-compatible
// chat completions endpoint.
type OpenAIDriver struct {
	client    openai.Client
	model     string
	maxTokens int
	schema    map[string]any
}

var _ Driver = (*OpenAIDriver)(nil)

func NewOpenAIDriver(cfg OpenAIConfig) (*OpenAIDriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	s, err := action.BatchSchema()
	if err != nil {
		return nil, err
	}
	schema, err := action.SchemaMap(s)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIDriver{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		schema:    schema,
	}, nil
}

func (d *OpenAIDriver) Complete(ctx context.Context, p Prompt) (string, error) {
	model := p.Model
	if model == "" {
		model = d.model
	}

	user := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(p.Text)}
	if p.Image != "" {
		user = append(user, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + p.Image,
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   batchSchemaName,
					Schema: d.schema,
				},
			},
		},
	}
	if d.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(d.maxTokens))
	}

	resp, err := d.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedDecision)
	}
	return resp.Choices[0].Message.Content, nil
}
