package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	memstore "github.com/BhekumusaEric/apply4me-sub001/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var notifyNow = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

type flakyTransport struct {
	MemoryTransport
	mu      sync.Mutex
	failFor map[string]bool
}

func (t *flakyTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	fail := t.failFor[msg.To]
	t.mu.Unlock()
	if fail {
		return errors.New("mailbox unavailable")
	}
	return t.MemoryTransport.Send(ctx, msg)
}

func newNotifier(t *testing.T, tr Transport) *Notifier {
	t.Helper()
	n, err := New(tr, fixedClock{now: notifyNow}, Config{AppName: "Apply4Me"}, zap.NewNop())
	require.NoError(t, err)
	return n
}

func bursaries(n int) []opportunity.Entity {
	closes := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
	out := make([]opportunity.Entity, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, opportunity.Entity{
			ID:       fmt.Sprintf("b%d", i),
			Kind:     opportunity.KindBursary,
			Name:     fmt.Sprintf("Bursary %d", i),
			Provider: "Sasol",
			Amount:   "R50 000",
			ClosesAt: &closes,
		})
	}
	return out
}

func subscribers(n int) []opportunity.Subscriber {
	out := make([]opportunity.Subscriber, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, opportunity.Subscriber{
			Address:     fmt.Sprintf("student%d@example.com", i),
			DisplayName: fmt.Sprintf("Student %d", i),
		})
	}
	return out
}

func TestNotifyOneMessagePerSubscriber(t *testing.T) {
	t.Parallel()

	tr := NewMemoryTransport()
	out := newNotifier(t, tr).Notify(context.Background(), opportunity.NotificationEvent{
		Kind:       opportunity.NotifyNewBursary,
		Payload:    bursaries(5),
		Recipients: subscribers(3),
	})
	assert.Equal(t, Outcome{Sent: 3}, out)

	msgs := tr.Messages()
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("student%d@example.com", i+1), m.To)
		assert.Equal(t, "5 new bursaries on Apply4Me", m.Subject)
		for j := 1; j <= 5; j++ {
			assert.Contains(t, m.HTMLBody, fmt.Sprintf("Bursary %d", j))
			assert.Contains(t, m.TextBody, fmt.Sprintf("Bursary %d", j))
		}
		assert.Contains(t, m.TextBody, fmt.Sprintf("Hi Student %d", i+1))
	}
}

func TestNotifyIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	tr := &flakyTransport{failFor: map[string]bool{"student2@example.com": true}}
	out := newNotifier(t, tr).Notify(context.Background(), opportunity.NotificationEvent{
		Kind:       opportunity.NotifyNewInstitution,
		Payload:    []opportunity.Entity{{ID: "i1", Kind: opportunity.KindInstitution, Name: "Test TVET College", Province: "Gauteng"}},
		Recipients: subscribers(3),
	})
	assert.Equal(t, 2, out.Sent)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "student2@example.com")
	assert.Len(t, tr.Messages(), 2)
}

func TestNotifyLedgerPreventsRepeats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewMemoryTransport()
	n := newNotifier(t, tr).WithLedger(memstore.NewLedger())
	event := opportunity.NotificationEvent{
		Kind:       opportunity.NotifyNewBursary,
		Payload:    bursaries(2),
		Recipients: subscribers(2),
	}

	first := n.Notify(ctx, event)
	assert.Equal(t, 2, first.Sent)

	event.Payload = bursaries(3)
	second := n.Notify(ctx, event)
	assert.Equal(t, 2, second.Sent)
	assert.Equal(t, 2, second.Skipped)
	msgs := tr.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "1 new bursary on Apply4Me", msgs[3].Subject)
	assert.Contains(t, msgs[3].TextBody, "Bursary 3")
	assert.NotContains(t, msgs[3].TextBody, "Bursary 1")

	third := n.Notify(ctx, event)
	assert.Equal(t, Outcome{Skipped: 3}, third)
	assert.Len(t, tr.Messages(), 4)
}

func TestNotifyLedgerUntouchedWhenEveryDeliveryFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := memstore.NewLedger()
	tr := &flakyTransport{failFor: map[string]bool{"student1@example.com": true}}
	n := newNotifier(t, tr).WithLedger(ledger)

	out := n.Notify(ctx, opportunity.NotificationEvent{
		Kind:       opportunity.NotifyNewBursary,
		Payload:    bursaries(1),
		Recipients: subscribers(1),
	})
	assert.Equal(t, 1, out.Failed)

	done, err := ledger.WasNotified(ctx, "b1", string(opportunity.NotifyNewBursary))
	require.NoError(t, err)
	assert.False(t, done)
}

func TestDeadlineReminderShowsDaysRemaining(t *testing.T) {
	t.Parallel()

	soon := notifyNow.AddDate(0, 0, 2)
	later := notifyNow.AddDate(0, 0, 6)
	tr := NewMemoryTransport()
	out := newNotifier(t, tr).Notify(context.Background(), opportunity.NotificationEvent{
		Kind: opportunity.NotifyDeadlineReminder,
		Payload: []opportunity.Entity{
			{ID: "a", Kind: opportunity.KindBursary, Name: "Funza Lushaka", Provider: "DBE", ClosesAt: &soon},
			{ID: "b", Kind: opportunity.KindInstitution, Name: "UCT", Province: "Western Cape", ClosesAt: &later},
		},
		Recipients: subscribers(1),
	})
	require.Equal(t, 1, out.Sent)

	m := tr.Messages()[0]
	assert.Equal(t, "Urgent: 2 application deadlines closing soon", m.Subject)
	assert.Contains(t, m.TextBody, "Funza Lushaka: 2 days left (closes 17 June 2025) URGENT")
	assert.Contains(t, m.TextBody, "UCT: 6 days left (closes 21 June 2025)")
	assert.Contains(t, m.HTMLBody, "color: red")
	assert.Contains(t, m.HTMLBody, "color: orange")
}

func TestWeeklyDigestWithOnlyUpcoming(t *testing.T) {
	t.Parallel()

	closes := notifyNow.AddDate(0, 0, 5)
	tr := NewMemoryTransport()
	n := newNotifier(t, tr)
	out, err := n.DispatchDigest(context.Background(), nil,
		[]opportunity.Entity{{ID: "u", Kind: opportunity.KindBursary, Name: "Allan Gray Fellowship", ClosesAt: &closes}},
		NewStaticResolver(subscribers(2)))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Sent)

	m := tr.Messages()[0]
	assert.Equal(t, "Your Apply4Me weekly digest for 15 June 2025", m.Subject)
	assert.Contains(t, m.TextBody, "No new opportunities were added this week.")
	assert.Contains(t, m.TextBody, "Allan Gray Fellowship closes 20 June 2025 (5 days)")
}

func TestWeeklyDigestSentOncePerWeek(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	closes := notifyNow.AddDate(0, 0, 5)
	upcoming := []opportunity.Entity{{ID: "u", Kind: opportunity.KindBursary, Name: "Allan Gray Fellowship", ClosesAt: &closes}}
	tr := NewMemoryTransport()
	n := newNotifier(t, tr).WithLedger(memstore.NewLedger())
	resolver := NewStaticResolver(subscribers(1))

	first, err := n.DispatchDigest(ctx, bursaries(1), upcoming, resolver)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := n.DispatchDigest(ctx, bursaries(1), upcoming, resolver)
	require.NoError(t, err)
	assert.Zero(t, second.Sent)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, tr.Messages(), 1)

	// A newly upcoming deadline is worth another digest.
	later := notifyNow.AddDate(0, 0, 9)
	upcoming = append(upcoming, opportunity.Entity{ID: "v", Kind: opportunity.KindBursary, Name: "Investec Bursary", ClosesAt: &later})
	third, err := n.DispatchDigest(ctx, bursaries(1), upcoming, resolver)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Sent)
	require.Len(t, tr.Messages(), 2)
	assert.Contains(t, tr.Messages()[1].TextBody, "Investec Bursary")
}

func TestDispatchResolvesByPreference(t *testing.T) {
	t.Parallel()

	resolver := NewStaticResolver([]opportunity.Subscriber{
		{Address: "all@example.com"},
		{Address: "bursaries@example.com", Preferences: []opportunity.NotificationKind{opportunity.NotifyNewBursary}},
		{Address: "digest@example.com", Preferences: []opportunity.NotificationKind{opportunity.NotifyWeeklyDigest}},
	})
	tr := NewMemoryTransport()
	out, err := newNotifier(t, tr).Dispatch(context.Background(), opportunity.NotifyNewBursary, bursaries(1), resolver)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Sent)

	var to []string
	for _, m := range tr.Messages() {
		to = append(to, m.To)
	}
	assert.Equal(t, []string{"all@example.com", "bursaries@example.com"}, to)
}

func TestDispatchEmptyPayloadSendsNothing(t *testing.T) {
	t.Parallel()

	tr := NewMemoryTransport()
	out, err := newNotifier(t, tr).Dispatch(context.Background(), opportunity.NotifyNewInstitution, nil,
		NewStaticResolver(subscribers(3)))
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, out)
	assert.Empty(t, tr.Messages())
}

type brokenResolver struct{}

func (brokenResolver) Resolve(context.Context, opportunity.NotificationKind) ([]opportunity.Subscriber, error) {
	return nil, errors.New("directory offline")
}

func TestDispatchResolverFailure(t *testing.T) {
	t.Parallel()

	_, err := newNotifier(t, NewMemoryTransport()).Dispatch(context.Background(),
		opportunity.NotifyNewBursary, bursaries(1), brokenResolver{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory offline")
}

func TestScope(t *testing.T) {
	t.Parallel()

	closes := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
	e := opportunity.Entity{ID: "x", ClosesAt: &closes}
	assert.Equal(t, "new_bursary", Scope(opportunity.NotifyNewBursary, e, notifyNow))
	assert.Equal(t, "deadline_reminder:2025-09-30", Scope(opportunity.NotifyDeadlineReminder, e, notifyNow))
	assert.Equal(t, "weekly_digest:2025-W24", Scope(opportunity.NotifyWeeklyDigest, e, notifyNow))
}

func TestDaysRemaining(t *testing.T) {
	t.Parallel()

	today := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysRemaining(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), today))
	assert.Equal(t, 1, DaysRemaining(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), today))
	assert.Equal(t, 0, DaysRemaining(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), today))
}

func TestNewRequiresTransport(t *testing.T) {
	t.Parallel()

	_, err := New(nil, fixedClock{}, Config{}, nil)
	require.Error(t, err)
}
