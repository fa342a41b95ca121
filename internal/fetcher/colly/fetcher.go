// Package collyfetcher implements static page retrieval using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements opportunity.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher with a pooled transport.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Transport failures and non-2xx
// statuses come back as *opportunity.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request opportunity.FetchRequest) (opportunity.FetchResponse, error) {
	var (
		result opportunity.FetchResponse
		fail   failure
	)
	site := metrics.SanitizeSite(request.URL)
	collector := f.buildCollector(ctx, request, time.Now(), &result, &fail)

	if err := f.runCollector(ctx, collector, request.URL, &fail); err != nil {
		metrics.ObserveFetch(site, statusLabel(fail.status), 0)
		return opportunity.FetchResponse{}, &opportunity.FetchError{
			SourceID:   request.SourceID,
			URL:        request.URL,
			StatusCode: fail.status,
			Cause:      err,
		}
	}
	metrics.ObserveFetch(site, statusLabel(result.StatusCode), len(result.Body))
	return result, nil
}

type failure struct {
	status int
	err    error
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request opportunity.FetchRequest,
	start time.Time,
	result *opportunity.FetchResponse,
	fail *failure,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	// Sources are re-scraped on every run.
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	if f.transport != nil {
		collector.WithTransport(f.transport)
	}

	f.configureCollectorHooks(collector, request, start, result, fail)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request opportunity.FetchRequest,
	start time.Time,
	result *opportunity.FetchResponse,
	fail *failure,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = opportunity.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		fail.err = err
		if r != nil {
			fail.status = r.StatusCode
		}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fail *failure) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fail.err != nil {
			return fmt.Errorf("colly response failed: %w", fail.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func statusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", code/100)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
