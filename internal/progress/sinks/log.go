package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Unavailable sources log at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.String("task_id", evt.TaskID),
			zap.String("run_id", evt.RunID),
			zap.Time("event_ts", evt.TS),
		}
		if evt.Stage == progress.StageSourceDone {
			fields = append(fields,
				zap.String("source_id", evt.SourceID),
				zap.String("status", string(evt.Status)),
				zap.Int("candidates", evt.Candidates),
			)
		}
		if evt.ErrorKind != "" {
			fields = append(fields, zap.String("error_kind", evt.ErrorKind))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Status == progress.SourceUnavailable || evt.Stage == progress.StageRunError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface.
func (s *LogSink) Close(context.Context) error {
	return nil
}
