package scraper

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

const cardSelector = "article, .bursary, .card, .opportunity, li.bursary-item"

// BursaryStrategy reads a listing of bursary cards. A page without cards is
// treated as a single bursary described by the page itself.
type BursaryStrategy struct {
	singlePage
}

// Extract implements Strategy.
func (BursaryStrategy) Extract(page Page, now time.Time) ([]opportunity.Candidate, []opportunity.ExtractionError) {
	src := page.Source
	var (
		out  []opportunity.Candidate
		errs []opportunity.ExtractionError
		seen = make(map[string]bool)
	)

	cards := page.Doc.Find(cardSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(cardSelector).Length() == 0
	})
	cards.Each(func(i int, card *goquery.Selection) {
		name := cardTitle(card)
		if name == "" {
			errs = append(errs, opportunity.ExtractionError{
				SourceID: src.ID, Field: "name", Cause: errors.New("bursary card without a title"),
			})
			return
		}
		key := opportunity.Normalize(name)
		if seen[key] {
			return
		}
		seen[key] = true
		cand, cardErrs := bursaryFrom(card, name, page, now)
		errs = append(errs, cardErrs...)
		out = append(out, cand)
	})

	if len(out) == 0 && len(errs) == 0 {
		name := cleanText(page.Doc.Find("h1").First().Text())
		if name == "" {
			name = src.DisplayName
		}
		cand, pageErrs := bursaryFrom(page.Doc.Find("body"), name, page, now)
		if cand.Description == "" || cand.HasPlaceholder(opportunity.FieldDescription) {
			if d := descriptionFrom(page.Doc); d != "" {
				cand.Description = d
				cand.Placeholders = without(cand.Placeholders, opportunity.FieldDescription)
			}
		}
		errs = append(errs, pageErrs...)
		out = append(out, cand)
	}
	return out, errs
}

func cardTitle(card *goquery.Selection) string {
	for _, sel := range []string{"h2", "h3", "h4", ".title", "strong", "a"} {
		if t := cleanText(card.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func bursaryFrom(
	card *goquery.Selection,
	name string,
	page Page,
	now time.Time,
) (*opportunity.BursaryCandidate, []opportunity.ExtractionError) {
	src := page.Source
	text := cleanText(card.Text())

	token, labelled := deadlineToken(text)
	var errs []opportunity.ExtractionError
	if labelled && token == nil {
		errs = append(errs, opportunity.ExtractionError{
			SourceID: src.ID, Field: "deadline", Cause: errors.New("deadline label without a value"),
		})
	}
	contact, contactErrs := contactFrom(card, src.ID)
	errs = append(errs, contactErrs...)
	if link := absoluteLink(page.Response.URL, card); link != "" {
		contact.Website = link
	}

	provider := src.Provider
	if provider == "" {
		provider = src.DisplayName
	}
	b := &opportunity.BursaryCandidate{
		CandidateBase: opportunity.CandidateBase{
			Name:          name,
			SourceID:      src.ID,
			SourceURL:     page.Response.URL,
			ExtractedAt:   now,
			DeadlineToken: token,
			Description:   cardDescription(card, name),
			Contact:       contact,
			Signals:       signalsIn(text),
		},
		Provider:      provider,
		FieldsOfStudy: fieldsIn(text),
		Eligibility:   eligibilityLines(card),
		Amount:        cleanText(amountRe.FindString(text)),
	}
	if len(b.FieldsOfStudy) == 0 {
		b.FieldsOfStudy = []string{"General"}
		b.Placeholders = append(b.Placeholders, opportunity.FieldFieldsOfStudy)
	}
	fillPlaceholders(&b.CandidateBase, src, "bursary")
	return b, errs
}

func absoluteLink(pageURL string, card *goquery.Selection) string {
	href, ok := card.Find(`a[href^="http"], a[href^="/"]`).First().Attr("href")
	if !ok {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func cardDescription(card *goquery.Selection, name string) string {
	var desc string
	card.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := cleanText(p.Text())
		if t != "" && t != name {
			desc = t
			return false
		}
		return true
	})
	return desc
}

func eligibilityLines(card *goquery.Selection) []string {
	var out []string
	card.Find("li, p").Each(func(_ int, s *goquery.Selection) {
		if s.Find("li, p").Length() > 0 {
			return
		}
		line := cleanText(s.Text())
		if line == "" || len(line) > 200 {
			return
		}
		lower := strings.ToLower(line)
		for _, m := range eligibilityMarkers {
			if strings.Contains(lower, m) {
				out = append(out, line)
				return
			}
		}
	})
	return out
}

func without(list []string, field string) []string {
	out := list[:0]
	for _, f := range list {
		if f != field {
			out = append(out, f)
		}
	}
	return out
}
