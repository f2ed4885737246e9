package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalLimiterEnforcesLimit(t *testing.T) {
	limiter := NewLocalLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		require.True(t, ok, "request %d should pass", i)
	}

	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.False(t, ok, "request over the limit should be rejected")
}

func TestLocalLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewLocalLimiter(1, time.Hour)

	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(context.Background(), "5.6.7.8")
	require.NoError(t, err)
	require.True(t, ok, "a different key must have its own budget")

	ok, err = limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.False(t, ok)
}
