package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gosom/pingwatch/internal/entities"
	"github.com/gosom/pingwatch/internal/eventstore"
)

func TestRunFixtures(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	t.Run("rejects a non positive count", func(t *testing.T) {
		for _, n := range []int{0, -1} {
			err := runFixtures(ctx, log, fixturesConfig{Num: n, Workers: 3, DataDir: t.TempDir()})
			require.Error(t, err)
		}
	})

	t.Run("rejects a non positive worker count", func(t *testing.T) {
		err := runFixtures(ctx, log, fixturesConfig{Num: 5, Workers: 0, DataDir: t.TempDir()})
		require.Error(t, err)
	})

	t.Run("writes the requested events", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, runFixtures(ctx, log, fixturesConfig{Num: 25, Workers: 4, DataDir: dir}))

		s, err := eventstore.Open(eventstore.Config{Log: log, Dir: dir})
		require.NoError(t, err)
		defer s.Close()
		require.Len(t, s.Query(entities.EventQuery{Limit: 100}), 25)
	})
}
