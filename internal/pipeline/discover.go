package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/deadline"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/progress"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scraper"
)

// discover scrapes every active source of category, syncs the eligible
// candidates and announces what is new. Source and record failures are
// counted; only an unreachable store fails the run.
func (p *Pipeline) discover(ctx context.Context, category opportunity.Category, s *RunSummary) error {
	var sources []opportunity.SourceDescriptor
	for _, src := range p.cfg.Sources {
		if src.Active && src.Category == category {
			sources = append(sources, src)
		}
	}
	s.Sources.Total = len(sources)
	if len(sources) == 0 {
		p.logger.Warn("no active sources", zap.String("category", string(category)))
		return nil
	}

	var cands []opportunity.Candidate
	for _, res := range p.scraper.FetchAll(ctx, sources) {
		evt := progress.Event{
			Stage:      progress.StageSourceDone,
			SourceID:   res.Source.ID,
			Candidates: len(res.Candidates),
		}
		switch res.Status {
		case scraper.StatusOK:
			s.Sources.OK++
			evt.Status = progress.SourceOK
		case scraper.StatusDegraded:
			s.Sources.Degraded++
			evt.Status = progress.SourceDegraded
		default:
			s.Sources.Unavailable++
			evt.Status = progress.SourceUnavailable
		}
		if res.Err != nil {
			s.fail(res.Err.Error())
			evt.ErrorKind, evt.Note = fetchErrorKind(res.Err), res.Err.Error()
		}
		p.emit(evt, s)
		cands = append(cands, res.Candidates...)
	}
	s.Found = len(cands)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discover %s: %w", category, err)
	}

	classified := p.classifier.ClassifyAll(cands)
	for _, c := range classified {
		if deadline.Eligible(c.Window) {
			s.Eligible++
		}
	}

	batch, err := p.sync.Sync(ctx, classified)
	s.New = len(batch.NewEntities)
	s.Updated = batch.UpdatedCount
	for _, msg := range batch.Errors {
		s.fail(msg)
	}
	if err != nil {
		return fmt.Errorf("discover %s: %w", category, err)
	}

	kind, want := opportunity.NotifyNewInstitution, opportunity.KindInstitution
	if category == opportunity.CategoryBursary {
		kind, want = opportunity.NotifyNewBursary, opportunity.KindBursary
	}
	var fresh []opportunity.Entity
	for _, e := range batch.NewEntities {
		if e.Kind == want {
			fresh = append(fresh, e)
		}
	}
	p.notify(ctx, kind, fresh, s)

	p.logger.Info("discovery complete",
		zap.String("category", string(category)),
		zap.Int("sources", s.Sources.Total),
		zap.Int("unavailable", s.Sources.Unavailable),
		zap.Int("found", s.Found),
		zap.Int("new", s.New),
		zap.Int("updated", s.Updated),
		zap.Int("errors", s.Errors),
	)
	return nil
}

func fetchErrorKind(err *opportunity.FetchError) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err.StatusCode >= 500:
		return "server_error"
	case err.StatusCode == 429:
		return "rate_limited"
	case err.StatusCode >= 400:
		return "client_error"
	default:
		return "network"
	}
}
