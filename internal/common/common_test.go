package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	require.Less(t, time.Since(start), time.Second)

	require.ErrorIs(t, SleepContext(ctx, 0), context.Canceled)
	require.NoError(t, SleepContext(context.Background(), -time.Second))
}
