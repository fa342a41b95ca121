// Package deadline classifies application windows from scraped deadline tokens.
package deadline

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Classifier turns raw deadline tokens into DeadlineWindows.
type Classifier struct {
	clock  opportunity.Clock
	logger *zap.Logger
}

// New builds a Classifier. A nil logger disables ambiguity logging.
func New(clock opportunity.Clock, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{clock: clock, logger: logger.Named("deadline")}
}

// Classify parses token into a window. Absent or unreadable tokens fall back
// to the academic-year heuristic for institutions.
func (c *Classifier) Classify(token *string, sourceName string) opportunity.DeadlineWindow {
	return c.classify(token, sourceName, opportunity.KindInstitution)
}

// ClassifyCandidate classifies the candidate's deadline token and applies the
// open/closed signals seen on its page.
func (c *Classifier) ClassifyCandidate(cand opportunity.Candidate) opportunity.Classified {
	base := cand.Common()
	window := c.classify(base.DeadlineToken, base.SourceID, cand.Kind())
	return opportunity.Classified{
		Candidate: cand,
		Window:    ApplySignals(window, base.Signals),
	}
}

// ClassifyAll classifies every candidate in order.
func (c *Classifier) ClassifyAll(cands []opportunity.Candidate) []opportunity.Classified {
	out := make([]opportunity.Classified, 0, len(cands))
	for _, cand := range cands {
		out = append(out, c.ClassifyCandidate(cand))
	}
	return out
}

func (c *Classifier) classify(token *string, sourceName string, kind opportunity.Kind) opportunity.DeadlineWindow {
	now := c.clock.Now()
	if token == nil || strings.TrimSpace(*token) == "" {
		return HeuristicWindow(now, kind)
	}
	closes, ok := ParseDate(*token, now)
	if !ok {
		c.logger.Info("deadline heuristic fallback",
			zap.String("source", sourceName),
			zap.Error(&opportunity.ClassificationAmbiguity{Source: sourceName, Token: *token}),
		)
		return HeuristicWindow(now, kind)
	}
	return ScrapedWindow(closes, now)
}

// ScrapedWindow builds a window closing on closes as seen from now.
func ScrapedWindow(closes, now time.Time) opportunity.DeadlineWindow {
	expired := opportunity.Day(now).After(closes)
	status := opportunity.StatusOpen
	if expired {
		status = opportunity.StatusClosed
	}
	return opportunity.DeadlineWindow{
		ClosesAt:  &closes,
		Status:    status,
		IsExpired: expired,
		Source:    opportunity.SourceScraped,
	}
}

// HeuristicWindow derives the South African intake window that applies in
// the month of now. Bursaries close later than institutions.
//
//	Jan-Apr: mid-year intake, Jan 1 to Apr 30 (bursaries May 15)
//	May-Sep: main intake, Mar 1 to Sep 30 (bursaries Oct 31)
//	Oct-Dec: next year's main intake, pending until it opens
func HeuristicWindow(now time.Time, kind opportunity.Kind) opportunity.DeadlineWindow {
	loc := now.Location()
	year := now.Year()
	bursary := kind == opportunity.KindBursary
	date := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return &t
	}

	switch month := now.Month(); {
	case month <= time.April:
		closes := date(year, time.April, 30)
		if bursary {
			closes = date(year, time.May, 15)
		}
		return opportunity.DeadlineWindow{
			OpensAt:  date(year, time.January, 1),
			ClosesAt: closes,
			Status:   opportunity.StatusOpen,
			Source:   opportunity.SourceHeuristic,
		}
	case month <= time.September:
		closes := date(year, time.September, 30)
		if bursary {
			closes = date(year, time.October, 31)
		}
		return opportunity.DeadlineWindow{
			OpensAt:  date(year, time.March, 1),
			ClosesAt: closes,
			Status:   opportunity.StatusOpen,
			Source:   opportunity.SourceHeuristic,
		}
	default:
		closes := date(year+1, time.September, 30)
		if bursary {
			closes = date(year+1, time.October, 31)
		}
		return opportunity.DeadlineWindow{
			OpensAt:  date(year+1, time.March, 1),
			ClosesAt: closes,
			Status:   opportunity.StatusPending,
			Source:   opportunity.SourceHeuristic,
		}
	}
}

// ApplySignals lets explicit page banners override the computed status.
// A closed banner always wins; an open banner never revives an expired window.
func ApplySignals(w opportunity.DeadlineWindow, s opportunity.Signals) opportunity.DeadlineWindow {
	switch {
	case s.Closed:
		w.Status = opportunity.StatusClosed
	case s.Open && !w.IsExpired:
		w.Status = opportunity.StatusOpen
	}
	return w
}

// Eligible reports whether a window may be persisted.
func Eligible(w opportunity.DeadlineWindow) bool {
	return w.Status != opportunity.StatusClosed && !w.IsExpired
}
