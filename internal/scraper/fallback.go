package scraper

import (
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Fallback turns a source's configured fallback records into degraded
// candidates. Degraded candidates may create entities but never patch them.
func Fallback(src opportunity.SourceDescriptor, now time.Time) []opportunity.Candidate {
	out := make([]opportunity.Candidate, 0, len(src.Fallback))
	for _, rec := range src.Fallback {
		base := opportunity.CandidateBase{
			Name:        rec.Name,
			SourceID:    src.ID,
			SourceURL:   src.TargetURL(),
			ExtractedAt: now,
			Degraded:    true,
			Description: rec.Description,
		}
		if rec.Deadline != "" {
			token := rec.Deadline
			base.DeadlineToken = &token
		}
		switch src.Category {
		case opportunity.CategoryBursary:
			provider := src.Provider
			if provider == "" {
				provider = src.DisplayName
			}
			b := &opportunity.BursaryCandidate{
				CandidateBase: base,
				Provider:      provider,
				FieldsOfStudy: append([]string(nil), rec.FieldsOfStudy...),
				Amount:        rec.Amount,
			}
			if len(b.FieldsOfStudy) == 0 {
				b.FieldsOfStudy = []string{"General"}
				b.Placeholders = append(b.Placeholders, opportunity.FieldFieldsOfStudy)
			}
			fillPlaceholders(&b.CandidateBase, src, "bursary")
			out = append(out, b)
		default:
			inst := &opportunity.InstitutionCandidate{
				CandidateBase:   base,
				Province:        src.Province,
				InstitutionType: src.InstitutionType,
			}
			fillPlaceholders(&inst.CandidateBase, src, "institution")
			out = append(out, inst)
		}
	}
	return out
}
