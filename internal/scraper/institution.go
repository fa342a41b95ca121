package scraper

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

var qualificationRe = regexp.MustCompile(`(?i)\b(bachelor(?:'s)?(?: of)?|b\.?\s?(?:sc|com|a|ed|eng|tech)\b|diploma|advanced diploma|higher certificate|advanced certificate|national certificate|nc\s?\(v\)|n[1-6]\s?-\s?n[1-6]|llb|mbchb|honours|postgraduate diploma|master(?:'s)?)`)

// InstitutionStrategy reads an admissions page: one institution record plus
// any programmes listed on it.
type InstitutionStrategy struct {
	singlePage
	DefaultType string
}

// Extract implements Strategy.
func (s InstitutionStrategy) Extract(page Page, now time.Time) ([]opportunity.Candidate, []opportunity.ExtractionError) {
	src := page.Source
	doc := page.Doc
	var errs []opportunity.ExtractionError

	bodyText := cleanText(doc.Find("body").Text())
	if bodyText == "" {
		errs = append(errs, opportunity.ExtractionError{
			SourceID: src.ID, Field: "body", Cause: errors.New("page has no text"),
		})
	}

	token, labelled := deadlineToken(bodyText)
	if labelled && token == nil {
		errs = append(errs, opportunity.ExtractionError{
			SourceID: src.ID, Field: "deadline", Cause: errors.New("deadline label without a value"),
		})
	}
	contact, contactErrs := contactFrom(doc.Selection, src.ID)
	errs = append(errs, contactErrs...)

	instType := src.InstitutionType
	if instType == "" {
		instType = s.DefaultType
	}
	inst := &opportunity.InstitutionCandidate{
		CandidateBase: opportunity.CandidateBase{
			Name:          src.DisplayName,
			SourceID:      src.ID,
			SourceURL:     page.Response.URL,
			ExtractedAt:   now,
			DeadlineToken: token,
			Description:   descriptionFrom(doc),
			Contact:       contact,
			Signals:       signalsIn(bodyText),
		},
		Province:        src.Province,
		InstitutionType: instType,
	}
	if m := feeRe.FindStringSubmatch(bodyText); m != nil {
		inst.ApplicationFee = cleanText(m[1])
	}
	fillPlaceholders(&inst.CandidateBase, src, "institution")

	out := []opportunity.Candidate{inst}
	out = append(out, programsFrom(doc, src, inst, now)...)
	return out, errs
}

func programsFrom(
	doc *goquery.Document,
	src opportunity.SourceDescriptor,
	inst *opportunity.InstitutionCandidate,
	now time.Time,
) []opportunity.Candidate {
	seen := make(map[string]bool)
	var out []opportunity.Candidate
	doc.Find("li, h3, h4, td").Each(func(_ int, sel *goquery.Selection) {
		if sel.Find("li, h3, h4, td").Length() > 0 {
			return
		}
		line := cleanText(sel.Text())
		if len(line) < 8 || len(line) > 120 {
			return
		}
		m := qualificationRe.FindString(line)
		if m == "" {
			return
		}
		name := line
		if i := strings.IndexAny(name, "–:|("); i > 8 {
			name = strings.TrimSpace(name[:i])
		}
		key := opportunity.Normalize(name)
		if seen[key] {
			return
		}
		seen[key] = true

		token, _ := deadlineToken(line)
		if token == nil {
			token = inst.DeadlineToken
		}
		prog := &opportunity.ProgramCandidate{
			CandidateBase: opportunity.CandidateBase{
				Name:          name,
				SourceID:      src.ID,
				SourceURL:     inst.SourceURL,
				ExtractedAt:   now,
				DeadlineToken: token,
				Contact:       inst.Contact,
				Signals:       inst.Signals,
			},
			Institution:   src.DisplayName,
			Province:      src.Province,
			Qualification: qualificationLabel(m),
			FieldsOfStudy: fieldsIn(line),
		}
		if len(prog.FieldsOfStudy) == 0 {
			prog.FieldsOfStudy = []string{"General"}
			prog.Placeholders = append(prog.Placeholders, opportunity.FieldFieldsOfStudy)
		}
		if inst.HasPlaceholder(opportunity.FieldEmail) {
			prog.Placeholders = append(prog.Placeholders, opportunity.FieldEmail)
		}
		fillPlaceholders(&prog.CandidateBase, src, "programme")
		out = append(out, prog)
	})
	return out
}

func qualificationLabel(match string) string {
	m := strings.ToLower(match)
	switch {
	case strings.HasPrefix(m, "bachelor"), strings.HasPrefix(m, "b"):
		return "Bachelor's Degree"
	case strings.HasPrefix(m, "advanced diploma"):
		return "Advanced Diploma"
	case strings.HasPrefix(m, "postgraduate diploma"):
		return "Postgraduate Diploma"
	case strings.HasPrefix(m, "diploma"):
		return "Diploma"
	case strings.HasPrefix(m, "higher certificate"):
		return "Higher Certificate"
	case strings.HasPrefix(m, "advanced certificate"):
		return "Advanced Certificate"
	case strings.HasPrefix(m, "national certificate"), strings.HasPrefix(m, "nc"):
		return "National Certificate (Vocational)"
	case strings.HasPrefix(m, "n"):
		return "NATED N1-N6"
	case m == "llb":
		return "Bachelor of Laws"
	case m == "mbchb":
		return "Bachelor of Medicine and Surgery"
	case strings.HasPrefix(m, "honours"):
		return "Honours Degree"
	case strings.HasPrefix(m, "master"):
		return "Master's Degree"
	default:
		return match
	}
}
