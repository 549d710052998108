package code_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/egame/internal/code"
	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/errors"
	"github.com/victornm/egame/internal/store"
)

func TestGenerator_Next(t *testing.T) {
	t.Parallel()

	s := makeStore(t)
	g := code.NewGenerator(code.Config{Store: s})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		c, err := g.Next(ctx)
		require.NoError(t, err)
		require.Len(t, c, 4)
		require.False(t, seen[c], "code %s assigned twice", c)
		seen[c] = true

		created, err := s.CreateSession(ctx, &domain.Session{Code: c, State: domain.StateWaiting})
		require.NoError(t, err)
		require.True(t, created)
	}
}

func TestGenerator_SkipsTakenCodes(t *testing.T) {
	t.Parallel()

	s := makeStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, &domain.Session{Code: "1000"})
	require.NoError(t, err)
	require.True(t, created)

	// Draw the taken code first, then a free one.
	draws := []int{0, 1}
	g := code.NewGenerator(code.Config{
		Store: s,
		IntN: func(int) int {
			d := draws[0]
			if len(draws) > 1 {
				draws = draws[1:]
			}
			return d
		},
	})

	c, err := g.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "1001", c)
}

func TestGenerator_Exhaustion(t *testing.T) {
	t.Parallel()

	s := makeStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, &domain.Session{Code: "1000"})
	require.NoError(t, err)
	require.True(t, created)

	g := code.NewGenerator(code.Config{
		Store:       s,
		MaxAttempts: 5,
		IntN:        func(int) int { return 0 }, // always the taken code
	})

	_, err = g.Next(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeResourceExhausted))
}

func makeStore(t *testing.T) *store.Redis {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return store.NewRedis(rc, "test")
}
