package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "nested", "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func bursary(id, name, provider string, closes time.Time, created time.Time) opportunity.Entity {
	c := &opportunity.BursaryCandidate{
		CandidateBase: opportunity.CandidateBase{Name: name, SourceID: "bursaries"},
		Provider:      provider,
		FieldsOfStudy: []string{"Engineering"},
	}
	return opportunity.NewEntity(id, opportunity.Classified{
		Candidate: c,
		Window: opportunity.DeadlineWindow{
			ClosesAt: &closes,
			Status:   opportunity.StatusOpen,
			Source:   opportunity.SourceScraped,
		},
	}, created)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestOpenAppliesPragmas(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "pragma.db"), BusyTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var busy int
	require.NoError(t, db.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	require.Equal(t, 2000, busy)
	var mode string
	require.NoError(t, db.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestOpenReportsPragmaFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "canceled.db"), BusyTimeout: time.Second})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorContains(t, err, "PRAGMA journal_mode")
}

func TestEntityStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entities := openTestDB(t).Entities()
	require.NoError(t, entities.Ping(ctx))

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := bursary("a", "Sasol Bursary", "Sasol", base.AddDate(0, 0, 3), base)
	b := bursary("b", "Eskom Bursary", "Eskom", base.AddDate(0, 2, 0), base.Add(time.Hour))

	ok, err := entities.Insert(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = entities.Insert(ctx, b)
	require.NoError(t, err)
	require.True(t, ok)

	dup := a
	dup.ID = "a-dup"
	ok, err = entities.Insert(ctx, dup)
	require.NoError(t, err)
	require.False(t, ok, "dedup key must be unique")

	got, err := entities.GetByKey(ctx, a.Key)
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)
	require.Equal(t, []string{"Engineering"}, got.FieldsOfStudy)

	_, err = entities.GetByKey(ctx, opportunity.DedupKey{Kind: opportunity.KindBursary, Name: "nope"})
	require.ErrorIs(t, err, store.ErrNotFound)

	scoped, err := entities.ListByScope(ctx, opportunity.KindBursary, "eskom")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, "b", scoped[0].ID)

	closing, err := entities.ListClosingBetween(ctx, base, base.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, closing, 1)
	require.Equal(t, "a", closing[0].ID)

	recent, err := entities.ListCreatedSince(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "b", recent[0].ID)

	all, err := entities.List(ctx, store.EntityFilter{Kind: opportunity.KindBursary, FieldOfStudy: "engineering"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)

	got.Description = "Full cost of study."
	got.UpdatedAt = base.Add(2 * time.Hour)
	require.NoError(t, entities.Update(ctx, got))
	reloaded, err := entities.GetByKey(ctx, a.Key)
	require.NoError(t, err)
	require.Equal(t, "Full cost of study.", reloaded.Description)

	ghost := got
	ghost.ID = "ghost"
	require.ErrorIs(t, entities.Update(ctx, ghost), store.ErrNotFound)

	n, err := entities.Delete(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestLedgerIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := openTestDB(t).Ledger()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	seen, err := ledger.WasNotified(ctx, "e1", "new_bursary")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, ledger.MarkNotified(ctx, "e1", "new_bursary", at))
	require.NoError(t, ledger.MarkNotified(ctx, "e1", "new_bursary", at))

	seen, err = ledger.WasNotified(ctx, "e1", "new_bursary")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = ledger.WasNotified(ctx, "e1", "deadline_reminder|2025-06-30")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestRunStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := openTestDB(t).Runs()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, runs.StartRun(ctx, store.TaskRun{ID: "r1", TaskID: "sweep", StartedAt: start}))
	require.NoError(t, runs.StartRun(ctx, store.TaskRun{ID: "r2", TaskID: "digest", StartedAt: start.Add(time.Minute)}))
	require.NoError(t, runs.FinishRun(ctx, "r1", start.Add(time.Second), store.RunSucceeded, json.RawMessage(`{"removed":1}`), ""))
	require.ErrorIs(t, runs.FinishRun(ctx, "zz", start, store.RunFailed, nil, "x"), store.ErrNotFound)

	got, err := runs.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, store.RunSucceeded, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.JSONEq(t, `{"removed":1}`, string(got.Summary))

	_, err = runs.GetRun(ctx, "zz")
	require.ErrorIs(t, err, store.ErrNotFound)

	all, err := runs.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "r2", all[0].ID)

	sweeps, err := runs.ListRuns(ctx, "sweep", 10)
	require.NoError(t, err)
	require.Len(t, sweeps, 1)
	require.Equal(t, store.RunRunning, all[0].Status)
}
