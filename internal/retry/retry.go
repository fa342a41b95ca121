// Package retry repeats transient source fetch failures with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Policy bounds how often and how slowly an operation is repeated.
type Policy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// Backoff returns the delay before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.Initial <= 0 {
		return 0
	}
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Do runs fn until it succeeds, returns a permanent error, or the retry
// budget is spent. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if sleepErr := Sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
				if err != nil {
					return err
				}
				return sleepErr
			}
		}
		err = fn(ctx)
		if err == nil || !Retryable(err) || attempt >= p.MaxRetries {
			return err
		}
	}
}

// Retryable reports whether err is worth another attempt: timeouts,
// connection failures and 408, 425, 429 or 5xx responses.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fetchErr *opportunity.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		return RetryableStatus(fetchErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryableStatus reports whether an HTTP status is transient.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
