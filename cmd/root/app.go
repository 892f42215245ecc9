package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/backend/native"
	"github.com/docker/deskpilot/pkg/backend/structured"
	"github.com/docker/deskpilot/pkg/backend/toolcall"
	"github.com/docker/deskpilot/pkg/config"
	"github.com/docker/deskpilot/pkg/desktop"
	"github.com/docker/deskpilot/pkg/desktop/browser"
	"github.com/docker/deskpilot/pkg/desktop/vm"
)

const defaultStructuredOpenAIModel = "gpt-4o"

var errNoBackend = errors.New("no decision backend configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY or GROQ_API_KEY")

// newDesktop returns the lazily created machine selected by the configuration.
func newDesktop(dc config.DesktopConfig) *desktop.Shared {
	switch dc.Driver {
	case config.DriverBrowser:
		return desktop.NewShared(func(ctx context.Context) (desktop.Desktop, error) {
			headless := true
			if dc.Browser.Headless != nil {
				headless = *dc.Browser.Headless
			}
			return browser.Launch(ctx, browser.Config{
				StartURL: dc.Browser.StartURL,
				Bin:      dc.Browser.Bin,
				Headless: headless,
			})
		})
	default:
		return desktop.NewShared(func(ctx context.Context) (desktop.Desktop, error) {
			return vm.New(ctx, vm.Config{
				BaseURL:    dc.VM.BaseURL,
				APIKey:     dc.VM.APIKey,
				ProjectID:  dc.VM.ProjectID,
				ComputerID: dc.VM.ComputerID,
				HTTPClient: &http.Client{Timeout: dc.VM.Timeout},
			})
		})
	}
}

// newBackends builds every backend that has credentials.
func newBackends(ctx context.Context, bc config.BackendsConfig) (backend.Set, error) {
	var list []backend.Backend

	if bc.Native.APIKey != "" {
		rt, err := native.NewAnthropicRuntime(native.AnthropicConfig{
			APIKey:    bc.Native.APIKey,
			BaseURL:   bc.Native.BaseURL,
			Model:     bc.Native.Model,
			MaxTokens: bc.Native.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("native backend: %w", err)
		}
		list = append(list, native.New(rt))
	}

	if sc := bc.Structured; sc.APIKey != "" {
		driver, err := newStructuredDriver(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("structured backend: %w", err)
		}
		list = append(list, structured.New(driver, structured.WithScreenshots(sc.Screenshots)))
	}

	if tc := bc.ToolCall; tc.APIKey != "" {
		b, err := toolcall.New(toolcall.Config{
			APIKey:      tc.APIKey,
			BaseURL:     tc.BaseURL,
			Model:       tc.Model,
			MaxTokens:   tc.MaxTokens,
			Screenshots: tc.Screenshots,
		})
		if err != nil {
			return nil, fmt.Errorf("toolcall backend: %w", err)
		}
		list = append(list, b)
	}

	if len(list) == 0 {
		return nil, errNoBackend
	}

	set := backend.NewSet(list...)
	kinds := make([]string, 0, len(set))
	for _, k := range backend.Kinds {
		if _, ok := set[k]; ok {
			kinds = append(kinds, string(k))
		}
	}
	slog.Debug("Backends configured", "kinds", kinds)
	return set, nil
}

func newStructuredDriver(ctx context.Context, sc config.StructuredConfig) (structured.Driver, error) {
	if sc.Provider == config.ProviderGemini {
		return structured.NewGeminiDriver(ctx, structured.GeminiConfig{
			APIKey:  sc.APIKey,
			BaseURL: sc.BaseURL,
			Model:   sc.Model,
		})
	}

	model := sc.Model
	if model == "" {
		model = defaultStructuredOpenAIModel
	}
	return structured.NewOpenAIDriver(structured.OpenAIConfig{
		APIKey:    sc.APIKey,
		BaseURL:   sc.BaseURL,
		Model:     model,
		MaxTokens: sc.MaxTokens,
	})
}

// defaultBackend resolves the configured default against what is available.
func defaultBackend(cfg *config.Config, set backend.Set) (backend.Kind, error) {
	kind := cfg.DefaultBackend()
	if kind == "" {
		return set.Default(), nil
	}
	if _, err := set.Get(kind); err != nil {
		return "", fmt.Errorf("default backend %s has no API key: %w", kind, err)
	}
	return kind, nil
}
