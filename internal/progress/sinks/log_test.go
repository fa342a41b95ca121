package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: "t", TS: now, Stage: progress.StageSourceDone, SourceID: "uj", Status: progress.SourceOK},
		{TaskID: "t", TS: now, Stage: progress.StageSourceDone, SourceID: "tut", Status: progress.SourceUnavailable,
			ErrorKind: "timeout"},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "timeout", entries[1].ContextMap()["error_kind"])
}
