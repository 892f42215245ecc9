// Package browser provides a local desktop backed by a headless Chromium
// page. It is used for development when no hosted machine is available.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/docker/deskpilot/pkg/desktop"
)

// Config controls the browser launch.
type Config struct {
	// StartURL is loaded on launch and on Restart.
	StartURL string
	// Bin overrides the Chromium binary; empty lets rod download or find one.
	Bin      string
	Headless bool
}

// Desktop drives a single page as if it were the whole screen.
type Desktop struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page

	// rod's mouse and keyboard keep state across calls.
	mu sync.Mutex
}

var (
	_ desktop.Desktop   = (*Desktop)(nil)
	_ desktop.Restarter = (*Desktop)(nil)
	_ desktop.Closer    = (*Desktop)(nil)
)

// Launch starts Chromium and opens cfg.StartURL at the shared display size.
func Launch(ctx context.Context, cfg Config) (*Desktop, error) {
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}

	l := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: cfg.StartURL})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             desktop.DisplayWidth,
		Height:            desktop.DisplayHeight,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("setting viewport: %w", err)
	}

	slog.Info("Browser desktop launched", "url", cfg.StartURL, "headless", cfg.Headless)
	return &Desktop{cfg: cfg, browser: b, page: page}, nil
}

func (d *Desktop) Screenshot(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(img), nil
}

func (d *Desktop) LeftClick(ctx context.Context, x, y int) error {
	return d.click(ctx, x, y, proto.InputMouseButtonLeft, 1)
}

func (d *Desktop) RightClick(ctx context.Context, x, y int) error {
	return d.click(ctx, x, y, proto.InputMouseButtonRight, 1)
}

func (d *Desktop) DoubleClick(ctx context.Context, x, y int) error {
	return d.click(ctx, x, y, proto.InputMouseButtonLeft, 2)
}

func (d *Desktop) click(ctx context.Context, x, y int, button proto.InputMouseButton, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mouse := d.page.Context(ctx).Mouse
	if err := mouse.MoveTo(proto.Point{X: float64(x), Y: float64(y)}); err != nil {
		return err
	}
	return mouse.Click(button, count)
}

func (d *Desktop) Type(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.page.Context(ctx).InsertText(text)
}

// Key presses a single key or a "Ctrl+Shift+t" style chord.
func (d *Desktop) Key(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	modifiers, main, err := parseChord(key)
	if err != nil {
		return err
	}
	page := d.page.Context(ctx)
	if len(modifiers) == 0 {
		return page.Keyboard.Type(main)
	}
	return page.KeyActions().Press(modifiers...).Type(main).Do()
}

func (d *Desktop) Scroll(ctx context.Context, direction string, amount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	const lineHeight = 40
	delta := float64(amount * lineHeight)
	var dx, dy float64
	switch strings.ToLower(direction) {
	case "up":
		dy = -delta
	case "down":
		dy = delta
	case "left":
		dx = -delta
	case "right":
		dx = delta
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	return d.page.Context(ctx).Mouse.Scroll(dx, dy, max(amount, 1))
}

func (d *Desktop) Wait(ctx context.Context, seconds float64) error {
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Desktop) Restart(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.page.Context(ctx).Navigate(d.cfg.StartURL)
}

func (d *Desktop) Close() error {
	return d.browser.Close()
}

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"space":      input.Space,
	" ":          input.Space,
}

var modifierKeys = map[string]input.Key{
	"ctrl":    input.ControlLeft,
	"control": input.ControlLeft,
	"shift":   input.ShiftLeft,
	"alt":     input.AltLeft,
	"meta":    input.MetaLeft,
	"super":   input.MetaLeft,
}

func parseChord(chord string) ([]input.Key, input.Key, error) {
	if chord == " " {
		return nil, input.Space, nil
	}
	parts := strings.Split(chord, "+")
	var modifiers []input.Key
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierKeys[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return nil, 0, fmt.Errorf("unknown modifier %q in %q", p, chord)
		}
		modifiers = append(modifiers, m)
	}

	last := parts[len(parts)-1]
	if k, ok := namedKeys[strings.ToLower(last)]; ok {
		return modifiers, k, nil
	}
	if utf8.RuneCountInString(last) == 1 {
		r, _ := utf8.DecodeRuneInString(last)
		return modifiers, input.Key(r), nil
	}
	return nil, 0, fmt.Errorf("unknown key %q", chord)
}
