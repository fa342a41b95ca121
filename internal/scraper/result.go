package scraper

import "github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"

// Status summarizes how a source scrape ended.
type Status string

// Source scrape statuses.
const (
	StatusOK                Status = "ok"
	StatusDegraded          Status = "degraded"
	StatusSourceUnavailable Status = "source_unavailable"
)

// FetchResult is the outcome of scraping one source. Err is set whenever the
// page could not be fetched or parsed, including degraded results.
type FetchResult struct {
	Source           opportunity.SourceDescriptor
	Candidates       []opportunity.Candidate
	Status           Status
	Err              *opportunity.FetchError
	ExtractionErrors []opportunity.ExtractionError
	ArchiveURI       string
}

// OK reports whether the page was fetched and read.
func (r FetchResult) OK() bool { return r.Status == StatusOK }
