package progress

import "context"

// Sink consumes batches of events. Implementations must honor ctx deadlines
// and be safe for repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so task bodies stay
// agnostic about buffering.
type Emitter interface {
	Emit(evt Event)
}
