// Package vm drives a hosted virtual machine through its HTTP computer API.
package vm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker/deskpilot/pkg/desktop"
)

const DefaultBaseURL = "https://www.orgo.ai/api"

// Config selects the machine to drive.
type Config struct {
	BaseURL    string
	APIKey     string
	ProjectID  string
	ComputerID string
	HTTPClient *http.Client
}

// Client implements desktop.Desktop against one remote computer.
type Client struct {
	baseURL    string
	apiKey     string
	computerID string
	http       *http.Client
}

var (
	_ desktop.Desktop   = (*Client)(nil)
	_ desktop.Restarter = (*Client)(nil)
)

// APIError is returned when the computer API answers with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("computer api: status %d: %s", e.Status, e.Message)
}

// New connects to cfg.ComputerID, or creates a new computer in cfg.ProjectID
// when no computer is given.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("computer api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		computerID: cfg.ComputerID,
		http:       httpClient,
	}
	if c.computerID != "" {
		slog.Debug("Using existing computer", "computer_id", c.computerID)
		return c, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/computers", map[string]any{"project_id": cfg.ProjectID}, &created); err != nil {
		return nil, fmt.Errorf("creating computer: %w", err)
	}
	if created.ID == "" {
		return nil, errors.New("creating computer: empty id in response")
	}
	c.computerID = created.ID
	slog.Info("Computer created", "computer_id", c.computerID, "project_id", cfg.ProjectID)
	return c, nil
}

// ID returns the remote computer identifier.
func (c *Client) ID() string { return c.computerID }

func (c *Client) Screenshot(ctx context.Context) (string, error) {
	var resp struct {
		Image string `json:"image"`
	}
	if err := c.do(ctx, http.MethodGet, c.path("screenshot"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Image, nil
}

func (c *Client) LeftClick(ctx context.Context, x, y int) error {
	return c.click(ctx, x, y, "left", false)
}

func (c *Client) RightClick(ctx context.Context, x, y int) error {
	return c.click(ctx, x, y, "right", false)
}

func (c *Client) DoubleClick(ctx context.Context, x, y int) error {
	return c.click(ctx, x, y, "left", true)
}

func (c *Client) click(ctx context.Context, x, y int, button string, double bool) error {
	return c.do(ctx, http.MethodPost, c.path("click"), map[string]any{
		"x":      x,
		"y":      y,
		"button": button,
		"double": double,
	}, nil)
}

func (c *Client) Type(ctx context.Context, text string) error {
	return c.do(ctx, http.MethodPost, c.path("type"), map[string]any{"text": text}, nil)
}

func (c *Client) Key(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, c.path("key"), map[string]any{"key": key}, nil)
}

func (c *Client) Scroll(ctx context.Context, direction string, amount int) error {
	return c.do(ctx, http.MethodPost, c.path("scroll"), map[string]any{
		"direction": direction,
		"amount":    amount,
	}, nil)
}

func (c *Client) Wait(ctx context.Context, seconds float64) error {
	return c.do(ctx, http.MethodPost, c.path("wait"), map[string]any{"duration": seconds}, nil)
}

func (c *Client) Restart(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.path("restart"), nil, nil)
}

func (c *Client) path(op string) string {
	return "/computers/" + url.PathEscape(c.computerID) + "/" + op
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
