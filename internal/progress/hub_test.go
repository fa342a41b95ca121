package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatch: 2, FlushInterval: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(runEvent(StageRunStart))
	hub.Emit(runEvent(StageRunDone))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesOnInterval(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 10, FlushInterval: 20 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(runEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	hub.Emit(runEvent(StageRunStart))
	hub.Emit(runEvent(StageRunStart))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(2), hub.Dropped())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{FlushInterval: time.Minute}, sink)
	hub.Emit(Event{TaskID: "t", TS: time.Now(), Stage: StageSourceDone})
	hub.Emit(Event{TS: time.Now(), Stage: StageRunStart})
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
	assert.True(t, sink.closed)
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 100, FlushInterval: time.Minute}, sink)
	hub.Emit(runEvent(StageRunStart))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)

	hub.Emit(runEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestHubKeepsGoingAfterSinkError(t *testing.T) {
	t.Parallel()

	failing := &stubSink{err: errors.New("sink down")}
	ok := &stubSink{}
	hub := NewHub(Config{MaxBatch: 1, FlushInterval: time.Minute}, failing, ok)
	hub.Emit(runEvent(StageRunStart))
	hub.Emit(runEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, ok.Batches(), 2)
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(runEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	assert.Zero(t, hub.Dropped())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name  string
		event Event
		ok    bool
	}{
		{"run start", Event{TaskID: "t", TS: now, Stage: StageRunStart}, true},
		{"source ok", Event{TaskID: "t", TS: now, Stage: StageSourceDone, SourceID: "uj", Status: SourceOK}, true},
		{"missing task", Event{TS: now, Stage: StageRunStart}, false},
		{"missing time", Event{TaskID: "t", Stage: StageRunStart}, false},
		{"unknown stage", Event{TaskID: "t", TS: now, Stage: "NOPE"}, false},
		{"source without id", Event{TaskID: "t", TS: now, Stage: StageSourceDone, Status: SourceOK}, false},
		{"source bad status", Event{TaskID: "t", TS: now, Stage: StageSourceDone, SourceID: "uj", Status: "meh"}, false},
		{"negative duration", Event{TaskID: "t", TS: now, Stage: StageRunDone, Dur: -time.Second}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.event.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	closed  bool
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func runEvent(stage Stage) Event {
	return Event{RunID: "run-1", TaskID: "institution-discovery", TS: time.Now(), Stage: stage}
}
