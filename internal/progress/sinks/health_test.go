package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
)

func TestHealthSinkTracksLatestState(t *testing.T) {
	t.Parallel()

	sink := NewHealthSink()
	t0 := time.Date(2025, 6, 16, 6, 0, 0, 0, time.UTC)
	source := func(ts time.Time, run string, status progress.SourceStatus, note string) progress.Event {
		return progress.Event{
			RunID: run, TaskID: "bursary-discovery", TS: ts, Stage: progress.StageSourceDone,
			SourceID: "nsfas", Status: status, Note: note, Candidates: 2,
		}
	}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r1", TaskID: "bursary-discovery", TS: t0, Stage: progress.StageRunStart},
		source(t0, "r1", progress.SourceOK, ""),
		source(t0.Add(time.Hour), "r2", progress.SourceUnavailable, "fetch nsfas: status 503"),
		source(t0.Add(2*time.Hour), "r3", progress.SourceUnavailable, ""),
	}))

	snap := sink.Snapshot()
	require.Len(t, snap, 1)
	h := snap[0]
	assert.Equal(t, progress.SourceUnavailable, h.Status)
	assert.Equal(t, 2, h.ConsecutiveFailures)
	assert.Equal(t, "r3", h.LastRunID)
	require.NotNil(t, h.LastSuccessAt)
	assert.Equal(t, t0, *h.LastSuccessAt)

	// A late event from an older run does not overwrite newer state.
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{source(t0, "r0", progress.SourceOK, "")}))
	assert.Equal(t, "r3", sink.Snapshot()[0].LastRunID)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		source(t0.Add(3*time.Hour), "r4", progress.SourceDegraded, ""),
	}))
	h = sink.Snapshot()[0]
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Empty(t, h.LastError)
	assert.Equal(t, t0.Add(3*time.Hour), *h.LastSuccessAt)
}

func TestHealthSinkSnapshotOrder(t *testing.T) {
	t.Parallel()

	sink := NewHealthSink()
	now := time.Now()
	for _, id := range []string{"wits", "cput", "nsfas"} {
		require.NoError(t, sink.Consume(context.Background(), []progress.Event{{
			TaskID: "t", TS: now, Stage: progress.StageSourceDone, SourceID: id, Status: progress.SourceOK,
		}}))
	}
	snap := sink.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"cput", "nsfas", "wits"}, []string{snap[0].SourceID, snap[1].SourceID, snap[2].SourceID})
}
