package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/backend"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetOrCreate_GeneratesID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sess, isNew, err := r.GetOrCreate("", "open the terminal", backend.Native, CreateIfMissing)
	require.NoError(t, err)

	assert.True(t, isNew)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "open the terminal", sess.Instruction)
	assert.Equal(t, backend.Native, sess.Backend())
}

func TestGetOrCreate_RequiresInstruction(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, _, err := r.GetOrCreate("", "  ", backend.Native, CreateIfMissing)
	require.ErrorIs(t, err, ErrInstructionRequired)

	_, _, err = r.GetOrCreate("abc", "", backend.Native, CreateIfMissing)
	require.ErrorIs(t, err, ErrInstructionRequired)
	assert.Equal(t, 0, r.Len())
}

func TestGetOrCreate_KnownIDKeepsInstruction(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first, _, err := r.GetOrCreate("conv", "first goal", backend.ToolCall, CreateIfMissing)
	require.NoError(t, err)

	again, isNew, err := r.GetOrCreate("conv", "second goal", backend.Structured, CreateIfMissing)
	require.NoError(t, err)

	assert.False(t, isNew)
	assert.Same(t, first, again)
	assert.Equal(t, "first goal", again.Instruction)
	assert.Equal(t, backend.ToolCall, again.Backend())
}

func TestGetOrCreate_MustExist(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, _, err := r.GetOrCreate("missing", "do things", backend.Native, MustExist)
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = r.GetOrCreate("", "do things", backend.Native, MustExist)
	require.ErrorIs(t, err, ErrEmptyID)

	assert.Equal(t, 0, r.Len())

	_, err = r.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_TTLEviction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now), WithTTL(time.Hour))

	idle, _, err := r.GetOrCreate("idle", "x", backend.Native, CreateIfMissing)
	require.NoError(t, err)
	busy, _, err := r.GetOrCreate("busy", "y", backend.Native, CreateIfMissing)
	require.NoError(t, err)
	_, ok := busy.TryStart("")
	require.True(t, ok)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, r.Sweep())

	_, err = r.Get(idle.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(busy.ID)
	require.NoError(t, err)

	busy.Finish()
	clock.Advance(30 * time.Minute)
	assert.Equal(t, 0, r.Sweep())
	clock.Advance(time.Hour)
	assert.Equal(t, 1, r.Sweep())
}

func TestRegistry_LRUBound(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now), WithMaxSessions(2))

	for _, id := range []string{"a", "b"} {
		_, _, err := r.GetOrCreate(id, "goal", backend.Native, CreateIfMissing)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	// touch "a" so "b" becomes the least recently used
	_, _, err := r.GetOrCreate("a", "", backend.Native, MustExist)
	require.NoError(t, err)

	_, _, err = r.GetOrCreate("c", "goal", backend.Native, CreateIfMissing)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	_, err = r.Get("b")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_LRUNeverEvictsRunning(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithMaxSessions(1))

	a, _, err := r.GetOrCreate("a", "goal", backend.Native, CreateIfMissing)
	require.NoError(t, err)
	_, ok := a.TryStart("")
	require.True(t, ok)

	_, _, err = r.GetOrCreate("b", "goal", backend.Native, CreateIfMissing)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentCreateSameID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var created atomic.Int32

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			_, isNew, err := r.GetOrCreate("shared", "goal", backend.Native, CreateIfMissing)
			assert.NoError(t, err)
			if isNew {
				created.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		NewRegistry().Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
