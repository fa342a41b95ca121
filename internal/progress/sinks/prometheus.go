package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
)

// PrometheusSink exports per-source health and in-flight runs.
type PrometheusSink struct {
	sourceUp       *prometheus.GaugeVec
	sourceFailures *prometheus.GaugeVec
	sourceSeen     *prometheus.GaugeVec
	runsRunning    prometheus.Gauge
	runRuntime     *prometheus.HistogramVec

	mu       sync.Mutex
	running  map[string]struct{}
	failures map[string]int
}

// NewPrometheusSink registers the collectors against reg. Collectors that
// are already registered are reused, so several sinks can share a registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{running: make(map[string]struct{}), failures: make(map[string]int)}
	var err error
	if s.sourceUp, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apply4me_source_up",
		Help: "Last fetch outcome per source: 1 ok, 0.5 degraded, 0 unavailable.",
	}, []string{"source_id"})); err != nil {
		return nil, err
	}
	if s.sourceFailures, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apply4me_source_consecutive_failures",
		Help: "Consecutive unavailable fetches per source.",
	}, []string{"source_id"})); err != nil {
		return nil, err
	}
	if s.sourceSeen, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apply4me_source_last_fetch_timestamp_seconds",
		Help: "Unix time of the last fetch attempt per source.",
	}, []string{"source_id"})); err != nil {
		return nil, err
	}
	if s.runsRunning, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "apply4me_runs_in_progress",
		Help: "Task runs that have started and not yet finished.",
	})); err != nil {
		return nil, err
	}
	if s.runRuntime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apply4me_run_wall_seconds",
		Help:    "Wall time per finished run, partitioned by task and result.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"task_id", "result"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register progress collector: %w", err)
	}
	return c, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if _, ok := s.running[evt.RunID]; !ok {
				s.running[evt.RunID] = struct{}{}
				s.runsRunning.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			if _, ok := s.running[evt.RunID]; ok {
				delete(s.running, evt.RunID)
				s.runsRunning.Dec()
			}
			result := "success"
			if evt.Stage == progress.StageRunError {
				result = "error"
			}
			if evt.Dur > 0 {
				s.runRuntime.WithLabelValues(evt.TaskID, result).Observe(evt.Dur.Seconds())
			}
		case progress.StageSourceDone:
			s.consumeSource(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) consumeSource(evt progress.Event) {
	up := 0.0
	switch evt.Status {
	case progress.SourceOK:
		up = 1
		s.failures[evt.SourceID] = 0
	case progress.SourceDegraded:
		up = 0.5
		s.failures[evt.SourceID] = 0
	default:
		s.failures[evt.SourceID]++
	}
	s.sourceUp.WithLabelValues(evt.SourceID).Set(up)
	s.sourceFailures.WithLabelValues(evt.SourceID).Set(float64(s.failures[evt.SourceID]))
	s.sourceSeen.WithLabelValues(evt.SourceID).Set(float64(evt.TS.Unix()))
}

// Close implements the Sink interface.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
