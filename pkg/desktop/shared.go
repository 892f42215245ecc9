package desktop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Factory creates the machine backing a Shared desktop.
type Factory func(ctx context.Context) (Desktop, error)

// Shared is the one machine every session drives. It is created lazily on
// first use and reused for the lifetime of the process.
//
// Shared also carries a desktop-wide lock: sessions that want exclusive use
// of the machine for a whole invocation go through Acquire.
type Shared struct {
	factory Factory
	group   singleflight.Group

	mu      sync.RWMutex
	current Desktop

	lock chan struct{}
}

var _ Desktop = (*Shared)(nil)

func NewShared(factory Factory) *Shared {
	return &Shared{
		factory: factory,
		lock:    make(chan struct{}, 1),
	}
}

// Get returns the shared machine, creating it on first use. Concurrent
// callers racing on creation share a single factory call.
func (s *Shared) Get(ctx context.Context) (Desktop, error) {
	s.mu.RLock()
	d := s.current
	s.mu.RUnlock()
	if d != nil {
		return d, nil
	}

	v, err, _ := s.group.Do("desktop", func() (any, error) {
		s.mu.RLock()
		existing := s.current
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		// The machine outlives whichever caller happened to trigger creation.
		start := time.Now()
		created, err := s.factory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		slog.Info("Shared desktop created", "duration", time.Since(start))

		s.mu.Lock()
		s.current = created
		s.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating desktop: %w", err)
	}
	return v.(Desktop), nil
}

// Reset reboots the shared machine but keeps the same instance.
func (s *Shared) Reset(ctx context.Context) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	r, ok := d.(Restarter)
	if !ok {
		return ErrNotRestartable
	}
	slog.Info("Restarting shared desktop")
	return r.Restart(ctx)
}

// Acquire takes the desktop-wide lock, waiting until it is free or ctx is done.
// The returned function releases it and is safe to call more than once.
func (s *Shared) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-s.lock })
	}, nil
}

// Close releases the underlying machine if it holds local resources.
func (s *Shared) Close() error {
	s.mu.Lock()
	d := s.current
	s.current = nil
	s.mu.Unlock()
	if c, ok := d.(Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Shared) Screenshot(ctx context.Context) (string, error) {
	d, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return d.Screenshot(ctx)
}

func (s *Shared) LeftClick(ctx context.Context, x, y int) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.LeftClick(ctx, x, y)
}

func (s *Shared) RightClick(ctx context.Context, x, y int) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.RightClick(ctx, x, y)
}

func (s *Shared) DoubleClick(ctx context.Context, x, y int) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.DoubleClick(ctx, x, y)
}

func (s *Shared) Type(ctx context.Context, text string) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.Type(ctx, text)
}

func (s *Shared) Key(ctx context.Context, key string) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.Key(ctx, key)
}

func (s *Shared) Scroll(ctx context.Context, direction string, amount int) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.Scroll(ctx, direction, amount)
}

func (s *Shared) Wait(ctx context.Context, seconds float64) error {
	d, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return d.Wait(ctx, seconds)
}
