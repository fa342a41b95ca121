package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Message is one rendered email for one recipient.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport delivers rendered messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes messages to the logger instead of sending them.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport constructs a LogTransport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger.Named("mail")}
}

// Send implements Transport.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}

// MemoryTransport records messages. Handy for tests and dry runs.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []Message
}

// NewMemoryTransport constructs a MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Send implements Transport.
func (t *MemoryTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (t *MemoryTransport) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}
