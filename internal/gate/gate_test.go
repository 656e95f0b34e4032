package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGate_OpenByDefault(t *testing.T) {
	g := New()
	require.False(t, g.Held())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_HoldBlocksUntilRelease(t *testing.T) {
	g := New()
	g.Hold()
	require.True(t, g.Held())

	const waiters = 10
	var wg sync.WaitGroup
	released := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			released <- g.Wait(context.Background())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	require.Len(t, released, 0)

	g.Release()
	wg.Wait()
	require.Len(t, released, waiters)
	close(released)
	for err := range released {
		require.NoError(t, err)
	}
	require.False(t, g.Held())
}

func TestGate_NestedHolds(t *testing.T) {
	g := New()
	g.Hold()
	g.Hold()
	g.Release()
	require.True(t, g.Held())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	g.Release()
	require.False(t, g.Held())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_UnbalancedReleaseIsIgnored(t *testing.T) {
	g := New()
	g.Release()
	g.Hold()
	require.True(t, g.Held())
	g.Release()
	require.False(t, g.Held())
}

func TestGate_WaitHonoursCancellation(t *testing.T) {
	g := New()
	g.Hold()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- g.Wait(ctx)
	}()
	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}
