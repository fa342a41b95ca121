package headless

import (
	"context"
	"errors"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// ErrNotConfigured is returned when a source needs a browser but headless
// rendering is disabled.
var ErrNotConfigured = errors.New("headless rendering is disabled")

// Noop stands in for the browser fetcher when headless.enabled is false.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrNotConfigured.
func (Noop) Fetch(_ context.Context, request opportunity.FetchRequest) (opportunity.FetchResponse, error) {
	return opportunity.FetchResponse{}, &opportunity.FetchError{
		SourceID: request.SourceID,
		URL:      request.URL,
		Cause:    ErrNotConfigured,
	}
}
