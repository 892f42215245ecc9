package structured

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/docker/deskpilot/pkg/action"
)

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiDriver uses Gemini's JSON response schema.
type GeminiDriver struct {
	client *genai.Client
	model  string
	schema map[string]any
}

var _ Driver = (*GeminiDriver)(nil)

func NewGeminiDriver(ctx context.Context, cfg GeminiConfig) (*GeminiDriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	s, err := action.BatchSchema()
	if err != nil {
		return nil, err
	}
	schema, err := action.SchemaMap(s)
	if err != nil {
		return nil, err
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiDriver{client: client, model: cfg.Model, schema: schema}, nil
}

func (d *GeminiDriver) Complete(ctx context.Context, p Prompt) (string, error) {
	model := p.Model
	if model == "" {
		model = d.model
	}

	parts := []*genai.Part{genai.NewPartFromText(p.Text)}
	if p.Image != "" {
		img, err := base64.StdEncoding.DecodeString(p.Image)
		if err != nil {
			return "", fmt.Errorf("decoding screenshot: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
	}

	resp, err := d.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction:  genai.NewContentFromText(p.System, genai.RoleUser),
			ResponseMIMEType:   "application/json",
			ResponseJsonSchema: d.schema,
		})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return resp.Text(), nil
}
