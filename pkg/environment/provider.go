// Package environment resolves secrets and settings from layered sources.
package environment

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Well-known variable names.
const (
	AnthropicAPIKey = "ANTHROPIC_API_KEY"
	OpenAIAPIKey    = "OPENAI_API_KEY"
	GroqAPIKey      = "GROQ_API_KEY"
	GeminiAPIKey    = "GEMINI_API_KEY"
	ComputerAPIKey  = "DESKPILOT_COMPUTER_API_KEY"
	JWTSecret       = "DESKPILOT_JWT_SECRET"
)

// Provider looks up a named value.
type Provider interface {
	Get(ctx context.Context, name string) (string, bool)
}

// OSProvider reads the process environment. Empty values count as unset.
type OSProvider struct{}

func NewOSProvider() *OSProvider { return &OSProvider{} }

func (p *OSProvider) Get(_ context.Context, name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// MultiProvider asks each provider in turn; the first hit wins.
type MultiProvider struct {
	providers []Provider
}

func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

func (p *MultiProvider) Get(ctx context.Context, name string) (string, bool) {
	for _, provider := range p.providers {
		if v, ok := provider.Get(ctx, name); ok {
			return v, true
		}
	}
	return "", false
}

// Lookup returns the value of name or fallback when unset.
func Lookup(ctx context.Context, p Provider, name, fallback string) string {
	if v, ok := p.Get(ctx, name); ok {
		return v
	}
	return fallback
}

// Require returns the values of all names, or an error listing the missing ones.
func Require(ctx context.Context, p Provider, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v, ok := p.Get(ctx, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return values, nil
}
