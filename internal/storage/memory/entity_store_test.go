package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

func entity(id, name, province string, created time.Time) opportunity.Entity {
	return opportunity.Entity{
		ID:        id,
		Kind:      opportunity.KindInstitution,
		Key:       opportunity.DedupKey{Kind: opportunity.KindInstitution, Name: opportunity.Normalize(name), Scope: opportunity.Normalize(province)},
		Name:      name,
		Province:  province,
		CreatedAt: created,
	}
}

func TestEntityStoreInsertEnforcesUniqueKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewEntityStore()
	now := time.Now()

	ok, err := s.Insert(ctx, entity("a", "Wits", "Gauteng", now))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Insert(ctx, entity("b", "WITS", "gauteng", now))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, s.Len())

	got, err := s.GetByKey(ctx, entity("", "wits", "Gauteng", now).Key)
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)

	_, err = s.GetByKey(ctx, entity("", "uj", "Gauteng", now).Key)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntityStoreListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewEntityStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	closed := base.AddDate(0, -1, 0)
	open := base.AddDate(0, 3, 0)

	a := entity("a", "Wits", "Gauteng", base)
	a.ClosesAt = &open
	a.DeadlineStatus = opportunity.StatusOpen
	b := entity("b", "UCT", "Western Cape", base.Add(time.Hour))
	b.ClosesAt = &closed
	b.DeadlineStatus = opportunity.StatusOpen
	for _, e := range []opportunity.Entity{a, b} {
		_, err := s.Insert(ctx, e)
		require.NoError(t, err)
	}

	all, err := s.List(ctx, store.EntityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)

	openNow, err := s.List(ctx, store.EntityFilter{OpenOn: &base})
	require.NoError(t, err)
	require.Len(t, openNow, 1)
	require.Equal(t, "a", openNow[0].ID)

	wc, err := s.List(ctx, store.EntityFilter{Province: "western cape"})
	require.NoError(t, err)
	require.Len(t, wc, 1)

	closing, err := s.ListClosingBetween(ctx, base, base.AddDate(0, 6, 0))
	require.NoError(t, err)
	require.Len(t, closing, 1)

	recent, err := s.ListCreatedSince(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "b", recent[0].ID)
}

func TestEntityStoreDeleteKeepsSurvivorIndexed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewEntityStore()
	now := time.Now()
	s.InsertRaw(entity("first", "Wits", "Gauteng", now))
	s.InsertRaw(entity("second", "Wits", "Gauteng", now.Add(time.Second)))
	require.Equal(t, 2, s.Len())

	n, err := s.Delete(ctx, []string{"first", "missing"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetByKey(ctx, entity("", "Wits", "Gauteng", now).Key)
	require.NoError(t, err)
	require.Equal(t, "second", got.ID)
}

func TestLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLedger()
	seen, err := l.WasNotified(ctx, "e1", "new_bursary")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, l.MarkNotified(ctx, "e1", "new_bursary", time.Now()))
	seen, err = l.WasNotified(ctx, "e1", "new_bursary")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = l.WasNotified(ctx, "e1", "weekly_digest:2025-W23")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.StartRun(ctx, store.TaskRun{ID: "r1", TaskID: "bursary-discovery", StartedAt: start}))
	require.NoError(t, s.StartRun(ctx, store.TaskRun{ID: "r2", TaskID: "maintenance", StartedAt: start.Add(time.Minute)}))
	require.Error(t, s.StartRun(ctx, store.TaskRun{ID: "r1"}))

	summary := json.RawMessage(`{"found":3}`)
	require.NoError(t, s.FinishRun(ctx, "r1", start.Add(time.Second), store.RunSucceeded, summary, ""))
	require.ErrorIs(t, s.FinishRun(ctx, "nope", start, store.RunFailed, nil, "x"), store.ErrNotFound)

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, store.RunSucceeded, run.Status)
	require.JSONEq(t, `{"found":3}`, string(run.Summary))

	runs, err := s.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "r2", runs[0].ID)

	only, err := s.ListRuns(ctx, "bursary-discovery", 10)
	require.NoError(t, err)
	require.Len(t, only, 1)
}
