package desktop_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/desktop"
	"github.com/docker/deskpilot/pkg/desktop/desktoptest"
)

func TestShared_CreatesOnce(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	fake := desktoptest.New()
	shared := desktop.NewShared(func(context.Context) (desktop.Desktop, error) {
		created.Add(1)
		time.Sleep(10 * time.Millisecond)
		return fake, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, err := shared.Get(t.Context())
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestShared_FactoryErrorIsRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	shared := desktop.NewShared(func(context.Context) (desktop.Desktop, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return desktoptest.New(), nil
	})

	_, err := shared.Get(t.Context())
	require.Error(t, err)

	_, err = shared.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestShared_DelegatesPrimitives(t *testing.T) {
	t.Parallel()

	fake := desktoptest.New()
	shared := desktop.NewShared(func(context.Context) (desktop.Desktop, error) { return fake, nil })
	ctx := t.Context()

	require.NoError(t, shared.LeftClick(ctx, 1, 2))
	require.NoError(t, shared.Type(ctx, "hi"))
	img, err := shared.Screenshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, fake.Image, img)
	assert.Equal(t, []string{"left_click", "type"}, fake.Ops())
}

func TestShared_Reset(t *testing.T) {
	t.Parallel()

	fake := desktoptest.New()
	shared := desktop.NewShared(func(context.Context) (desktop.Desktop, error) { return fake, nil })

	require.NoError(t, shared.Reset(t.Context()))
	assert.Equal(t, 1, fake.Restarts())
}

func TestShared_AcquireIsExclusive(t *testing.T) {
	t.Parallel()

	shared := desktop.NewShared(nil)

	release, err := shared.Acquire(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = shared.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()

	again, err := shared.Acquire(t.Context())
	require.NoError(t, err)
	again()
}

func TestShared_CreationSurvivesCancelledCaller(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	proceed := make(chan struct{})
	shared := desktop.NewShared(func(ctx context.Context) (desktop.Desktop, error) {
		close(started)
		<-proceed
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return desktoptest.New(), nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	first := make(chan error, 1)
	go func() {
		_, err := shared.Get(ctx)
		first <- err
	}()

	<-started
	second := make(chan error, 1)
	go func() {
		_, err := shared.Get(t.Context())
		second <- err
	}()

	cancel()
	close(proceed)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
}
