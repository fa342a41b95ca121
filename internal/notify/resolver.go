package notify

import (
	"context"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// StaticResolver serves a fixed subscriber list, typically from config.
type StaticResolver struct {
	subscribers []opportunity.Subscriber
}

// NewStaticResolver constructs a StaticResolver. The slice is copied.
func NewStaticResolver(subs []opportunity.Subscriber) *StaticResolver {
	return &StaticResolver{subscribers: append([]opportunity.Subscriber(nil), subs...)}
}

// Resolve returns the subscribers that opted into kind.
func (r *StaticResolver) Resolve(_ context.Context, kind opportunity.NotificationKind) ([]opportunity.Subscriber, error) {
	var out []opportunity.Subscriber
	for _, s := range r.subscribers {
		if s.Wants(kind) {
			out = append(out, s)
		}
	}
	return out, nil
}
