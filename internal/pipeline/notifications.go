package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// remind announces open entities that close within the reminder window.
func (p *Pipeline) remind(ctx context.Context, s *RunSummary) error {
	if err := p.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", opportunity.ErrStoreUnavailable, err)
	}
	today := opportunity.Day(p.clock.Now())
	closing, err := p.repo.ListClosingBetween(ctx, today, today.Add(p.cfg.ReminderWindow))
	if err != nil {
		return fmt.Errorf("list closing entities: %w", err)
	}
	due := openOn(closing, today)
	s.Found = len(due)
	sortByClosing(due)
	p.notify(ctx, opportunity.NotifyDeadlineReminder, due, s)
	return nil
}

// digest summarizes the past week's new entities and the deadlines ahead.
func (p *Pipeline) digest(ctx context.Context, s *RunSummary) error {
	if err := p.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", opportunity.ErrStoreUnavailable, err)
	}
	now := p.clock.Now()
	today := opportunity.Day(now)
	created, err := p.repo.ListCreatedSince(ctx, now.Add(-digestLookback))
	if err != nil {
		return fmt.Errorf("list new entities: %w", err)
	}
	closing, err := p.repo.ListClosingBetween(ctx, today, today.Add(digestUpcoming))
	if err != nil {
		return fmt.Errorf("list closing entities: %w", err)
	}
	fresh := openOn(created, today)
	upcoming := openOn(closing, today)
	sortByClosing(upcoming)
	s.Found = len(fresh) + len(upcoming)

	if p.notifier == nil || p.resolver == nil {
		return nil
	}
	out, err := p.notifier.DispatchDigest(ctx, fresh, upcoming, p.resolver)
	if err != nil {
		s.fail(err.Error())
		return nil
	}
	s.Notifications.Add(out)
	return nil
}

// maintain removes duplicate entities that bypassed the synchronizer.
func (p *Pipeline) maintain(ctx context.Context, s *RunSummary) error {
	res, err := p.sync.Sweep(ctx)
	s.Sweep = &res
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	return nil
}

func openOn(entities []opportunity.Entity, day time.Time) []opportunity.Entity {
	filter := store.EntityFilter{OpenOn: &day}
	out := make([]opportunity.Entity, 0, len(entities))
	for _, e := range entities {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func sortByClosing(entities []opportunity.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i].ClosesAt, entities[j].ClosesAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}
