package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"github.com/quickmart/quickmart-auth/internal/service"
)

func newResetService(t *testing.T, ttl time.Duration) (*service.ResetTokenService, *memoryResetRepo) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	repo := newMemoryResetRepo()
	return service.NewResetTokenService(repo, node, ttl), repo
}

func TestResetTokenSingleUse(t *testing.T) {
	svc, _ := newResetService(t, time.Hour)
	ctx := context.Background()

	token, err := svc.Generate(ctx, 7)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := svc.ValidateAndConsume(ctx, 7, token)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.ValidateAndConsume(ctx, 7, token)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetTokenWrongUserOrValue(t *testing.T) {
	svc, _ := newResetService(t, time.Hour)
	ctx := context.Background()

	token, err := svc.Generate(ctx, 7)
	require.NoError(t, err)

	ok, err := svc.ValidateAndConsume(ctx, 8, token)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.ValidateAndConsume(ctx, 7, "not-the-token")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.ValidateAndConsume(ctx, 7, "")
	require.NoError(t, err)
	require.False(t, ok)

	// The real one is still intact after the misses.
	ok, err = svc.ValidateAndConsume(ctx, 7, token)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResetTokenExpiry(t *testing.T) {
	svc, _ := newResetService(t, 10*time.Millisecond)
	ctx := context.Background()

	token, err := svc.Generate(ctx, 7)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	ok, err := svc.ValidateAndConsume(ctx, 7, token)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetTokenConcurrentConsume(t *testing.T) {
	svc, _ := newResetService(t, time.Hour)
	ctx := context.Background()

	token, err := svc.Generate(ctx, 7)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.ValidateAndConsume(ctx, 7, token)
			results <- ok
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}
	require.Equal(t, 1, successes)
}

func TestResetTokensAreUnique(t *testing.T) {
	svc, _ := newResetService(t, time.Hour)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		token, err := svc.Generate(ctx, int64(i))
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}
