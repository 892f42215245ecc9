// Package desktoptest provides an in-memory desktop for tests.
package desktoptest

import (
	"context"
	"fmt"
	"sync"
)

// Call records one primitive invocation.
type Call struct {
	Op        string
	X, Y      int
	Text      string
	Direction string
	Amount    int
	Seconds   float64
}

// Fake is a scriptable desktop. Ops listed in Fail return an error.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	Image    string
	Fail     map[string]error
	restarts int
}

func New() *Fake {
	return &Fake{
		Image: "aW1hZ2U=",
		Fail:  map[string]error{},
	}
}

// FailOn makes every call of op return err.
func (f *Fake) FailOn(op string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[op] = err
	return f
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the recorded operation names, excluding screenshots.
func (f *Fake) Ops() []string {
	var ops []string
	for _, c := range f.Calls() {
		if c.Op != "screenshot" {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

func (f *Fake) Restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if err, ok := f.Fail[c.Op]; ok && err != nil {
		return fmt.Errorf("%s: %w", c.Op, err)
	}
	return nil
}

func (f *Fake) Screenshot(context.Context) (string, error) {
	if err := f.record(Call{Op: "screenshot"}); err != nil {
		return "", err
	}
	return f.Image, nil
}

func (f *Fake) LeftClick(_ context.Context, x, y int) error {
	return f.record(Call{Op: "left_click", X: x, Y: y})
}

func (f *Fake) RightClick(_ context.Context, x, y int) error {
	return f.record(Call{Op: "right_click", X: x, Y: y})
}

func (f *Fake) DoubleClick(_ context.Context, x, y int) error {
	return f.record(Call{Op: "double_click", X: x, Y: y})
}

func (f *Fake) Type(_ context.Context, text string) error {
	return f.record(Call{Op: "type", Text: text})
}

func (f *Fake) Key(_ context.Context, key string) error {
	return f.record(Call{Op: "key", Text: key})
}

func (f *Fake) Scroll(_ context.Context, direction string, amount int) error {
	return f.record(Call{Op: "scroll", Direction: direction, Amount: amount})
}

func (f *Fake) Wait(_ context.Context, seconds float64) error {
	return f.record(Call{Op: "wait", Seconds: seconds})
}

func (f *Fake) Restart(context.Context) error {
	f.mu.Lock()
	f.restarts++
	f.mu.Unlock()
	return f.record(Call{Op: "restart"})
}
