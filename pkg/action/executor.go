package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/deskpilot/pkg/desktop"
)

const (
	defaultScrollDirection = "down"
	defaultScrollAmount    = 1
	defaultWaitSeconds     = 1.0

	keyFallback = "used type instead"
)

var errMissingCoordinate = errors.New("coordinate is required")

// Executor dispatches descriptors to a desktop.
type Executor struct {
	desktop desktop.Desktop
}

func NewExecutor(d desktop.Desktop) *Executor {
	return &Executor{desktop: d}
}

// Execute runs one action. It never panics and never returns an error:
// failures are reported in Result.Error.
func (e *Executor) Execute(ctx context.Context, d Descriptor) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Action panicked", "action", d.Type, "panic", r)
			res = Result{Action: d.Type, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	res, err := e.execute(ctx, d)
	res.Action = d.Type
	if err != nil {
		slog.Debug("Action failed", "action", d.String(), "error", err)
		res.Error = err.Error()
		res.Text = ""
		res.Image = ""
	}
	return res
}

func (e *Executor) execute(ctx context.Context, d Descriptor) (Result, error) {
	switch d.Type {
	case Screenshot:
		img, err := e.desktop.Screenshot(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Image: img}, nil

	case LeftClick, RightClick, DoubleClick:
		if d.Coordinate == nil {
			return Result{}, fmt.Errorf("%w for %s", errMissingCoordinate, d.Type)
		}
		x, y := d.Coordinate[0], d.Coordinate[1]
		var err error
		switch d.Type {
		case LeftClick:
			err = e.desktop.LeftClick(ctx, x, y)
		case RightClick:
			err = e.desktop.RightClick(ctx, x, y)
		default:
			err = e.desktop.DoubleClick(ctx, x, y)
		}
		if err != nil {
			return Result{}, err
		}
		verb := map[Type]string{LeftClick: "Clicked", RightClick: "Right-clicked", DoubleClick: "Double-clicked"}[d.Type]
		return Result{Text: fmt.Sprintf("%s at (%d, %d)", verb, x, y)}, nil

	case TypeText:
		if d.Text == "" {
			return Result{}, errors.New("text is required for type")
		}
		if err := e.desktop.Type(ctx, d.Text); err != nil {
			return Result{}, err
		}
		return Result{Text: "Typed: " + d.Text}, nil

	case Key:
		return e.pressKey(ctx, d)

	case Scroll:
		direction := d.ScrollDirection
		if direction == "" {
			direction = defaultScrollDirection
		}
		amount := d.ScrollAmount
		if amount <= 0 {
			amount = defaultScrollAmount
		}
		if err := e.desktop.Scroll(ctx, direction, amount); err != nil {
			return Result{}, err
		}
		return Result{Text: fmt.Sprintf("Scrolled %s by %d", direction, amount)}, nil

	case Wait:
		seconds := d.Duration
		if seconds <= 0 {
			seconds = defaultWaitSeconds
		}
		if err := e.desktop.Wait(ctx, seconds); err != nil {
			return Result{}, err
		}
		return Result{Text: fmt.Sprintf("Waited for %g seconds", seconds)}, nil

	default:
		return Result{}, fmt.Errorf("unsupported action: %s", d.Type)
	}
}

func (e *Executor) pressKey(ctx context.Context, d Descriptor) (Result, error) {
	name := d.keyName()
	if strings.TrimSpace(name) == "" && name != " " {
		return Result{}, errors.New("key value is required")
	}
	key := MapKey(name)

	err := e.desktop.Key(ctx, key)
	if err == nil {
		return Result{Text: "Pressed: " + key}, nil
	}

	slog.Warn("Key press failed, typing instead", "key", key, "error", err)
	if typeErr := e.desktop.Type(ctx, key); typeErr != nil {
		return Result{}, errors.Join(err, typeErr)
	}
	return Result{Text: "Pressed: " + key, Fallback: keyFallback}, nil
}
