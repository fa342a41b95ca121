package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesSameHost(t *testing.T) {
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.up.ac.za/admissions"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.up.ac.za/fees"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterIsolatesHosts(t *testing.T) {
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterPauseHonorsContext(t *testing.T) {
	l := New(Config{})
	l.Pause("https://busy.example/x", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Wait(ctx, "https://busy.example/y"), context.DeadlineExceeded)

	// Other hosts are unaffected and a zero rate means unlimited.
	require.NoError(t, l.Wait(context.Background(), "https://calm.example/"))
}

func TestLimiterPauseExpires(t *testing.T) {
	l := New(Config{})
	l.Pause("https://busy.example/x", 30*time.Millisecond)
	l.Pause("https://busy.example/x", time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://busy.example/x"))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
