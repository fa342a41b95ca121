// Package detector decides when a statically fetched source page must be
// re-rendered in a headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Heuristic implements opportunity.HeadlessDetector with rule-based checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// Pages that tell the visitor to turn on scripts are rendered client side.
var scriptPrompts = []string{
	"enable javascript",
	"javascript is required",
	"javascript must be enabled",
}

// ShouldPromote reports whether probe looks like a client-rendered shell.
func (h *Heuristic) ShouldPromote(probe opportunity.FetchResponse) bool {
	if probe.StatusCode != http.StatusOK || probe.UsedHeadless {
		return false
	}
	body := probe.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return asksForScripts(body)
}

func asksForScripts(body []byte) bool {
	lower := strings.ToLower(string(body))
	start := strings.Index(lower, "<noscript")
	if start == -1 {
		return false
	}
	end := strings.Index(lower[start:], "</noscript>")
	if end == -1 {
		end = len(lower) - start
	}
	block := lower[start : start+end]
	for _, prompt := range scriptPrompts {
		if strings.Contains(block, prompt) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script tags cover a quarter of the page.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if relEnd := strings.Index(lower[contentStart:], closeTag); relEnd != -1 {
			next = contentStart + relEnd + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage > 0 && coverage*100/total >= 25
}
