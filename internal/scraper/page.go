package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/fetcher/headless"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/retry"
)

// HostLimiter paces requests per host. *ratelimit.Limiter satisfies it.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
	Pause(rawURL string, d time.Duration)
}

// Page is a fetched and parsed source page.
type Page struct {
	Source   opportunity.SourceDescriptor
	Response opportunity.FetchResponse
	Doc      *goquery.Document
}

// PageFetcher retrieves source pages. It applies the host rate limit and
// retry policy, and promotes JavaScript shells to the headless renderer.
type PageFetcher struct {
	static   opportunity.Fetcher
	headless opportunity.Fetcher
	detector opportunity.HeadlessDetector
	limiter  HostLimiter
	retry    retry.Policy
	headers  http.Header
	logger   *zap.Logger
}

// NewPageFetcher wires the fetch stack. headless, detector and limiter may be nil.
func NewPageFetcher(
	static opportunity.Fetcher,
	headless opportunity.Fetcher,
	detector opportunity.HeadlessDetector,
	limiter HostLimiter,
	policy retry.Policy,
	logger *zap.Logger,
) *PageFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageFetcher{
		static:   static,
		headless: headless,
		detector: detector,
		limiter:  limiter,
		retry:    policy,
		headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"en-ZA,en;q=0.9"},
		},
		logger: logger.Named("pages"),
	}
}

// Page fetches src's target URL and parses it.
func (p *PageFetcher) Page(ctx context.Context, src opportunity.SourceDescriptor) (Page, error) {
	resp, err := p.Get(ctx, src)
	if err != nil {
		return Page{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Page{}, &opportunity.FetchError{
			SourceID:   src.ID,
			URL:        resp.URL,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("parse html: %w", err),
		}
	}
	return Page{Source: src, Response: resp, Doc: doc}, nil
}

// Get fetches src's target URL using its render mode.
func (p *PageFetcher) Get(ctx context.Context, src opportunity.SourceDescriptor) (opportunity.FetchResponse, error) {
	req := opportunity.FetchRequest{SourceID: src.ID, URL: src.TargetURL(), Headers: p.headers}

	switch src.Render {
	case opportunity.RenderHeadless:
		return p.fetch(ctx, p.headlessFetcher(), req)
	case opportunity.RenderAuto:
		resp, err := p.fetch(ctx, p.static, req)
		if err != nil {
			return resp, err
		}
		if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
			return resp, nil
		}
		p.logger.Debug("promoting source to headless", zap.String("source_id", src.ID))
		rendered, err := p.fetch(ctx, p.headless, req)
		if err != nil {
			// The static body is still usable, if thin.
			p.logger.Warn("headless promotion failed", zap.String("source_id", src.ID), zap.Error(err))
			return resp, nil
		}
		return rendered, nil
	default:
		return p.fetch(ctx, p.static, req)
	}
}

func (p *PageFetcher) headlessFetcher() opportunity.Fetcher {
	if p.headless != nil {
		return p.headless
	}
	return headless.NewNoop()
}

func (p *PageFetcher) fetch(
	ctx context.Context,
	fetcher opportunity.Fetcher,
	req opportunity.FetchRequest,
) (opportunity.FetchResponse, error) {
	var (
		resp    opportunity.FetchResponse
		attempt int
	)
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, req.URL); err != nil {
				return &opportunity.FetchError{SourceID: req.SourceID, URL: req.URL, Cause: err}
			}
		}
		var err error
		resp, err = fetcher.Fetch(ctx, req)
		if err != nil {
			p.logger.Debug("fetch attempt failed",
				zap.String("source_id", req.SourceID),
				zap.String("url", req.URL),
				zap.Error(err),
			)
			var fetchErr *opportunity.FetchError
			if !errors.As(err, &fetchErr) {
				return &opportunity.FetchError{SourceID: req.SourceID, URL: req.URL, Cause: err}
			}
			if fetchErr.StatusCode == http.StatusTooManyRequests && p.limiter != nil {
				// Slow every source on this host, not just this one.
				p.limiter.Pause(req.URL, p.retry.Backoff(attempt))
			}
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &opportunity.FetchError{
				SourceID:   req.SourceID,
				URL:        req.URL,
				StatusCode: resp.StatusCode,
				Cause:      errors.New(http.StatusText(resp.StatusCode)),
			}
		}
		return nil
	})
	return resp, err
}
