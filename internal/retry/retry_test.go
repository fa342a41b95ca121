package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := Policy{Initial: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	require.Equal(t, time.Duration(0), p.Backoff(0))
	require.Equal(t, 100*time.Millisecond, p.Backoff(1))
	require.Equal(t, 200*time.Millisecond, p.Backoff(2))
	require.Equal(t, 350*time.Millisecond, p.Backoff(3))
	require.Equal(t, 350*time.Millisecond, p.Backoff(10))
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	status := func(code int) error {
		return &opportunity.FetchError{SourceID: "s", StatusCode: code, Cause: errors.New(http.StatusText(code))}
	}
	require.True(t, Retryable(status(http.StatusServiceUnavailable)))
	require.True(t, Retryable(status(http.StatusTooManyRequests)))
	require.True(t, Retryable(status(http.StatusRequestTimeout)))
	require.False(t, Retryable(status(http.StatusNotFound)))
	require.False(t, Retryable(status(http.StatusForbidden)))
	require.True(t, Retryable(&opportunity.FetchError{Cause: context.DeadlineExceeded}))
	require.False(t, Retryable(context.Canceled))
	require.False(t, Retryable(errors.New("parse failure")))
	require.False(t, Retryable(nil))
}

func TestDoRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Policy{MaxRetries: 2, Initial: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &opportunity.FetchError{StatusCode: http.StatusBadGateway, Cause: errors.New("bad gateway")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Policy{MaxRetries: 5, Initial: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return &opportunity.FetchError{StatusCode: http.StatusNotFound, Cause: errors.New("not found")}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoGivesUpAfterBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Policy{MaxRetries: 1, Initial: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return &opportunity.FetchError{StatusCode: http.StatusServiceUnavailable, Cause: errors.New("down")}
	})
	var fetchErr *opportunity.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 2, calls)
}

func TestDoReturnsLastErrorWhenContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := Policy{MaxRetries: 3, Initial: time.Hour}.Do(ctx, func(context.Context) error {
		cancel()
		return &opportunity.FetchError{StatusCode: http.StatusServiceUnavailable, Cause: errors.New("down")}
	})
	var fetchErr *opportunity.FetchError
	require.ErrorAs(t, err, &fetchErr)
}
