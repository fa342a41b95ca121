// Package scraper fetches configured sources and extracts candidate records.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

const defaultConcurrency = 4

// Config controls scraper behaviour.
type Config struct {
	// DegradedFallback synthesizes the source's fallback records when the
	// page cannot be fetched. Off by default.
	DegradedFallback bool
	Concurrency      int
}

// Scraper runs strategies against sources.
type Scraper struct {
	pages    *PageFetcher
	registry *Registry
	clock    opportunity.Clock
	cfg      Config
	blob     opportunity.BlobStore
	hasher   opportunity.Hasher
	logger   *zap.Logger
}

// New constructs a Scraper.
func New(pages *PageFetcher, registry *Registry, clock opportunity.Clock, cfg Config, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Scraper{
		pages:    pages,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("scraper"),
	}
}

// WithArchive stores every fetched page body in blob, keyed by its digest.
func (s *Scraper) WithArchive(blob opportunity.BlobStore, hasher opportunity.Hasher) *Scraper {
	s.blob = blob
	s.hasher = hasher
	return s
}

// FetchAll scrapes sources with a bounded pool. Results keep the order of
// sources and one failing source never affects the others.
func (s *Scraper) FetchAll(ctx context.Context, sources []opportunity.SourceDescriptor) []FetchResult {
	type indexed struct {
		i   int
		res FetchResult
	}
	results := make(chan indexed, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results <- indexed{i: i, res: s.Fetch(gctx, src)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	out := make([]FetchResult, len(sources))
	for r := range results {
		out[r.i] = r.res
	}
	return out
}

// Fetch scrapes a single source. It never panics and never returns a
// partial page: either the page was read, or Err explains why not.
func (s *Scraper) Fetch(ctx context.Context, src opportunity.SourceDescriptor) (result FetchResult) {
	logger := s.logger.With(zap.String("source_id", src.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("strategy panicked", zap.Any("panic", r))
			result = s.failed(src, &opportunity.FetchError{
				SourceID: src.ID,
				URL:      src.TargetURL(),
				Cause:    fmt.Errorf("strategy panic: %v", r),
			})
		}
		metrics.ObserveSourceResult(string(src.Category), string(result.Status))
	}()

	strategy, err := s.registry.Lookup(src)
	if err != nil {
		return s.failed(src, &opportunity.FetchError{SourceID: src.ID, URL: src.TargetURL(), Cause: err})
	}

	page, err := strategy.Fetch(ctx, s.pages, src)
	if err != nil {
		var fetchErr *opportunity.FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = &opportunity.FetchError{SourceID: src.ID, URL: src.TargetURL(), Cause: err}
		}
		logger.Warn("source fetch failed", zap.Error(fetchErr))
		return s.failed(src, fetchErr)
	}

	now := s.clock.Now()
	cands, extractErrs := strategy.Extract(page, now)
	for _, e := range extractErrs {
		logger.Debug("extraction error", zap.String("field", e.Field), zap.Error(e.Cause))
	}
	result = FetchResult{
		Source:           src,
		Candidates:       cands,
		Status:           StatusOK,
		ExtractionErrors: extractErrs,
	}
	result.ArchiveURI = s.archive(ctx, src, page.Response.Body)
	logger.Info("source scraped",
		zap.Int("candidates", len(cands)),
		zap.Int("extraction_errors", len(extractErrs)),
		zap.Bool("headless", page.Response.UsedHeadless),
	)
	return result
}

func (s *Scraper) failed(src opportunity.SourceDescriptor, fetchErr *opportunity.FetchError) FetchResult {
	if s.cfg.DegradedFallback && len(src.Fallback) > 0 {
		return FetchResult{
			Source:     src,
			Candidates: Fallback(src, s.clock.Now()),
			Status:     StatusDegraded,
			Err:        fetchErr,
		}
	}
	return FetchResult{Source: src, Status: StatusSourceUnavailable, Err: fetchErr}
}

func (s *Scraper) archive(ctx context.Context, src opportunity.SourceDescriptor, body []byte) string {
	if s.blob == nil || s.hasher == nil || len(body) == 0 {
		return ""
	}
	sum, err := s.hasher.Hash(body)
	if err != nil {
		s.logger.Warn("hash page", zap.String("source_id", src.ID), zap.Error(err))
		return ""
	}
	key := path.Join(src.ID, s.clock.Now().Format("2006/01/02"), sum+".html")
	uri, err := s.blob.PutObject(ctx, key, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("archive page", zap.String("source_id", src.ID), zap.Error(err))
		return ""
	}
	return uri
}
