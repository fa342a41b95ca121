package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
)

// SourceHealth is the latest known state of one source.
type SourceHealth struct {
	SourceID            string                `json:"source_id"`
	Status              progress.SourceStatus `json:"status"`
	LastFetchAt         time.Time             `json:"last_fetch_at"`
	LastSuccessAt       *time.Time            `json:"last_success_at,omitempty"`
	LastRunID           string                `json:"last_run_id,omitempty"`
	Candidates          int                   `json:"candidates"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	LastError           string                `json:"last_error,omitempty"`
}

// HealthSink keeps SourceHealth per source in memory for the ops API.
type HealthSink struct {
	mu      sync.RWMutex
	sources map[string]*SourceHealth
}

// NewHealthSink constructs an empty HealthSink.
func NewHealthSink() *HealthSink {
	return &HealthSink{sources: make(map[string]*SourceHealth)}
}

// Consume folds SOURCE_DONE events into the table. Events older than what is
// already recorded are ignored.
func (s *HealthSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage != progress.StageSourceDone {
			continue
		}
		h := s.sources[evt.SourceID]
		if h == nil {
			h = &SourceHealth{SourceID: evt.SourceID}
			s.sources[evt.SourceID] = h
		}
		if evt.TS.Before(h.LastFetchAt) {
			continue
		}
		h.Status = evt.Status
		h.LastFetchAt = evt.TS
		h.LastRunID = evt.RunID
		h.Candidates = evt.Candidates
		if evt.Status == progress.SourceUnavailable {
			h.ConsecutiveFailures++
			h.LastError = evt.Note
			if h.LastError == "" {
				h.LastError = evt.ErrorKind
			}
			continue
		}
		ts := evt.TS
		h.LastSuccessAt = &ts
		h.ConsecutiveFailures = 0
		h.LastError = ""
	}
	return nil
}

// Snapshot returns every known source ordered by id.
func (s *HealthSink) Snapshot() []SourceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceHealth, 0, len(s.sources))
	for _, h := range s.sources {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Close implements the Sink interface.
func (s *HealthSink) Close(context.Context) error {
	return nil
}
