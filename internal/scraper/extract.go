package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

const deadlineWindow = 60

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe    = regexp.MustCompile(`(?:\+27|\b0)\s?\(?\d{2}\)?[\s-]?\d{3}[\s-]?\d{4}\b`)
	amountRe   = regexp.MustCompile(`(?i)\bR\s?\d[\d\s,]*(?:\.\d{2})?(?:\s?(?:k|000|million|per\s+(?:year|annum|month)))?`)
	feeRe      = regexp.MustCompile(`(?i)application fee[^R\d]{0,40}(R\s?\d[\d\s,]*(?:\.\d{2})?)`)
	spaceRe    = regexp.MustCompile(`\s+`)
	deadlineRe = regexp.MustCompile(`(?i)\b(closing dates?|deadlines?|applications? close(?:s|\s+on)?\b|closes on|due date|apply by|apply before)\b\s*(?:is|on|:|-|–)?\s*`)
)

var closedPhrases = []string{
	"applications closed",
	"applications are closed",
	"applications have closed",
	"no longer accepting",
	"closed for applications",
}

var openPhrases = []string{
	"apply now",
	"applications open",
	"applications are open",
	"now open",
	"now accepting",
}

var fieldKeywords = []struct {
	field    string
	keywords []string
}{
	{"Engineering", []string{"engineering"}},
	{"Commerce", []string{"commerce", "accounting", "finance", "economics", "business"}},
	{"Health Sciences", []string{"medicine", "nursing", "health", "pharmacy", "mbchb"}},
	{"Law", []string{"law", "llb"}},
	{"Education", []string{"education", "teaching"}},
	{"Information Technology", []string{"information technology", "computer science", "ict", "software"}},
	{"Science", []string{"science", "bsc", "mathematics", "physics", "chemistry"}},
	{"Agriculture", []string{"agriculture", "agricultural"}},
	{"Humanities", []string{"humanities", "arts", "social sciences", "psychology"}},
	{"Mining", []string{"mining", "geology"}},
}

var eligibilityMarkers = []string{
	"must", "citizen", "south african", "matric", "grade 12", "average",
	"financial need", "household income", "registered", "eligible", "requirement",
}

// cleanText collapses whitespace.
func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// deadlineToken finds the text that follows a deadline label. labelled is
// true when a label was present, even if nothing usable followed it.
func deadlineToken(text string) (token *string, labelled bool) {
	loc := deadlineRe.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	rest := []rune(strings.TrimSpace(text[loc[1]:]))
	if len(rest) > deadlineWindow {
		rest = rest[:deadlineWindow]
	}
	tok := strings.TrimSpace(string(rest))
	if tok == "" {
		return nil, true
	}
	return &tok, true
}

func signalsIn(text string) opportunity.Signals {
	lower := strings.ToLower(text)
	var sig opportunity.Signals
	for _, p := range closedPhrases {
		if strings.Contains(lower, p) {
			sig.Closed = true
			break
		}
	}
	for _, p := range openPhrases {
		if strings.Contains(lower, p) {
			sig.Open = true
			break
		}
	}
	return sig
}

func fieldsIn(text string) []string {
	lower := " " + strings.ToLower(text) + " "
	var out []string
	for _, fk := range fieldKeywords {
		for _, kw := range fk.keywords {
			if containsWord(lower, kw) {
				out = append(out, fk.field)
				break
			}
		}
	}
	return out
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if !isLetter(haystack, start-1) && !isLetter(haystack, end) {
			return true
		}
		idx = start + 1
	}
}

func isLetter(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// contactFrom scans sel for mailto links, emails and phone numbers.
func contactFrom(sel *goquery.Selection, sourceID string) (opportunity.Contact, []opportunity.ExtractionError) {
	var (
		c    opportunity.Contact
		errs []opportunity.ExtractionError
	)
	sel.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		addr := strings.TrimPrefix(strings.SplitN(href, "?", 2)[0], "mailto:")
		if emailRe.MatchString(addr) {
			c.Email = addr
			return false
		}
		errs = append(errs, opportunity.ExtractionError{
			SourceID: sourceID,
			Field:    opportunity.FieldEmail,
			Cause:    fmt.Errorf("malformed mailto %q", href),
		})
		return true
	})
	text := sel.Text()
	if c.Email == "" {
		c.Email = emailRe.FindString(text)
	}
	sel.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		c.Phone = cleanText(strings.TrimPrefix(href, "tel:"))
		return c.Phone == ""
	})
	if c.Phone == "" {
		c.Phone = cleanText(phoneRe.FindString(text))
	}
	return c, errs
}

func descriptionFrom(doc *goquery.Document) string {
	if meta, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if d := cleanText(meta); d != "" {
			return d
		}
	}
	var desc string
	doc.Find("main p, article p, p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := cleanText(p.Text())
		if len(t) >= 40 {
			desc = t
			return false
		}
		return true
	})
	return desc
}

// fillPlaceholders synthesizes deterministic values for missing fields so
// downstream never sees empty descriptions or contact email.
func fillPlaceholders(base *opportunity.CandidateBase, src opportunity.SourceDescriptor, kindLabel string) {
	if base.Description == "" {
		base.Description = fmt.Sprintf("%s (%s) listed by %s. See %s for details.",
			base.Name, kindLabel, src.DisplayName, src.TargetURL())
		base.Placeholders = append(base.Placeholders, opportunity.FieldDescription)
	}
	if base.Contact.Website == "" {
		base.Contact.Website = src.BaseURL
	}
	if base.Contact.Email == "" {
		if host := siteHost(src.BaseURL); host != "" {
			base.Contact.Email = "info@" + host
			base.Placeholders = append(base.Placeholders, opportunity.FieldEmail)
		}
	}
}

func siteHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
