package synchronizer

import (
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Patch merges fresh into existing field by field. Only empty or placeholder
// fields are filled, and a scraped deadline replaces a heuristic or older one.
// Degraded data never overwrites anything. It reports whether existing changed.
func Patch(existing, fresh opportunity.Entity, now time.Time) (opportunity.Entity, bool) {
	if fresh.Degraded {
		return existing, false
	}
	if existing.Degraded {
		replaced := fresh
		replaced.ID = existing.ID
		replaced.Key = existing.Key
		replaced.CreatedAt = existing.CreatedAt
		replaced.UpdatedAt = now
		return replaced, true
	}

	out := existing
	out.Placeholders = append([]string(nil), existing.Placeholders...)
	out.Contact = existing.Contact
	changed := false

	fill := func(dst *string, src string, field string) {
		if src == "" || *dst == src || fresh.HasPlaceholder(field) {
			return
		}
		if *dst != "" && !out.HasPlaceholder(field) {
			return
		}
		*dst = src
		out.Placeholders = without(out.Placeholders, field)
		changed = true
	}
	fill(&out.Description, fresh.Description, opportunity.FieldDescription)
	fill(&out.Contact.Email, fresh.Contact.Email, opportunity.FieldEmail)
	fill(&out.Contact.Phone, fresh.Contact.Phone, opportunity.FieldPhone)
	fill(&out.Contact.Website, fresh.Contact.Website, opportunity.FieldWebsite)

	for _, pair := range []struct {
		dst *string
		src string
	}{
		{&out.SourceURL, fresh.SourceURL},
		{&out.Province, fresh.Province},
		{&out.InstitutionType, fresh.InstitutionType},
		{&out.ApplicationFee, fresh.ApplicationFee},
		{&out.Institution, fresh.Institution},
		{&out.Qualification, fresh.Qualification},
		{&out.Provider, fresh.Provider},
		{&out.Amount, fresh.Amount},
	} {
		if *pair.dst == "" && pair.src != "" {
			*pair.dst = pair.src
			changed = true
		}
	}
	if len(out.FieldsOfStudy) == 0 && len(fresh.FieldsOfStudy) > 0 {
		out.FieldsOfStudy = append([]string(nil), fresh.FieldsOfStudy...)
		changed = true
	}
	if len(out.Eligibility) == 0 && len(fresh.Eligibility) > 0 {
		out.Eligibility = append([]string(nil), fresh.Eligibility...)
		changed = true
	}

	if deadlineSupersedes(existing, fresh) {
		out.OpensAt = fresh.OpensAt
		out.ClosesAt = fresh.ClosesAt
		out.DeadlineStatus = fresh.DeadlineStatus
		out.DeadlineSource = fresh.DeadlineSource
		changed = true
	}

	if changed {
		out.UpdatedAt = now
	}
	return out, changed
}

func deadlineSupersedes(existing, fresh opportunity.Entity) bool {
	same := sameDay(existing.OpensAt, fresh.OpensAt) &&
		sameDay(existing.ClosesAt, fresh.ClosesAt) &&
		existing.DeadlineStatus == fresh.DeadlineStatus &&
		existing.DeadlineSource == fresh.DeadlineSource
	if same {
		return false
	}
	switch {
	case fresh.DeadlineSource == opportunity.SourceScraped && existing.DeadlineSource == opportunity.SourceScraped:
		// Only the source that created the entity may move its scraped
		// deadline; otherwise two sources would overwrite each other every run.
		return fresh.SourceID == existing.SourceID
	case fresh.DeadlineSource == opportunity.SourceScraped:
		return true
	case existing.DeadlineSource == opportunity.SourceScraped:
		// A derived window never replaces a deadline read from the page.
		return false
	default:
		return true
	}
}

func sameDay(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		ay, am, ad := a.Date()
		by, bm, bd := b.Date()
		return ay == by && am == bm && ad == bd
	}
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
