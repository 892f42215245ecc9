// Package desktop defines the primitive operations a remote desktop exposes
// and a process-wide handle on the single shared machine.
package desktop

import (
	"context"
	"errors"
)

// Fixed display geometry of the shared machine.
const (
	DisplayWidth  = 1024
	DisplayHeight = 768
)

var ErrNotRestartable = errors.New("desktop does not support restart")

// Desktop is the set of primitive operations the agent can perform.
// Every call may block on the remote machine and may fail.
type Desktop interface {
	// Screenshot returns the current screen as a base64 encoded image.
	Screenshot(ctx context.Context) (string, error)
	LeftClick(ctx context.Context, x, y int) error
	RightClick(ctx context.Context, x, y int) error
	DoubleClick(ctx context.Context, x, y int) error
	Type(ctx context.Context, text string) error
	Key(ctx context.Context, key string) error
	Scroll(ctx context.Context, direction string, amount int) error
	Wait(ctx context.Context, seconds float64) error
}

// Restarter is implemented by desktops that can be rebooted in place.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Closer is implemented by desktops holding local resources.
type Closer interface {
	Close() error
}
