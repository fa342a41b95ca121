package opportunity

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DeadlineStatus is the lifecycle state of an application window.
type DeadlineStatus string

// Deadline statuses.
const (
	StatusOpen    DeadlineStatus = "open"
	StatusClosed  DeadlineStatus = "closed"
	StatusPending DeadlineStatus = "pending"
	StatusUnknown DeadlineStatus = "unknown"
)

// DeadlineSource says whether a window was read from the page or derived.
type DeadlineSource string

// Deadline sources.
const (
	SourceScraped   DeadlineSource = "scraped"
	SourceHeuristic DeadlineSource = "heuristic"
)

// DeadlineWindow annotates a candidate with its application window.
type DeadlineWindow struct {
	OpensAt   *time.Time     `json:"opens_at,omitempty"`
	ClosesAt  *time.Time     `json:"closes_at,omitempty"`
	Status    DeadlineStatus `json:"status"`
	IsExpired bool           `json:"is_expired"`
	Source    DeadlineSource `json:"source"`
}

// DedupKey identifies a canonical entity. At most one entity exists per key.
type DedupKey struct {
	Kind  Kind   `json:"kind"`
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// String renders the key for logs and map lookups.
func (k DedupKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Kind, k.Name, k.Scope)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(nonAlnum.ReplaceAllString(lower, " ")), " ")
}

// KeyFor derives the dedup key of a candidate.
func KeyFor(c Candidate) DedupKey {
	name := Normalize(c.Common().Name)
	switch v := c.(type) {
	case *InstitutionCandidate:
		return DedupKey{Kind: KindInstitution, Name: name, Scope: Normalize(v.Province)}
	case *ProgramCandidate:
		return DedupKey{Kind: KindProgram, Name: name, Scope: programScope(v.Institution, v.Province)}
	case *BursaryCandidate:
		return DedupKey{Kind: KindBursary, Name: name, Scope: Normalize(v.Provider)}
	default:
		return DedupKey{Kind: c.Kind(), Name: name}
	}
}

func programScope(institution, province string) string {
	return Normalize(institution) + "|" + Normalize(province)
}

// Entity is a persisted institution, program or bursary.
type Entity struct {
	ID              string         `json:"id"`
	Kind            Kind           `json:"kind"`
	Key             DedupKey       `json:"key"`
	Name            string         `json:"name"`
	SourceID        string         `json:"source_id"`
	SourceURL       string         `json:"source_url,omitempty"`
	Description     string         `json:"description,omitempty"`
	Contact         Contact        `json:"contact"`
	Province        string         `json:"province,omitempty"`
	InstitutionType string         `json:"institution_type,omitempty"`
	ApplicationFee  string         `json:"application_fee,omitempty"`
	Institution     string         `json:"institution,omitempty"`
	Qualification   string         `json:"qualification,omitempty"`
	Provider        string         `json:"provider,omitempty"`
	FieldsOfStudy   []string       `json:"fields_of_study,omitempty"`
	Eligibility     []string       `json:"eligibility,omitempty"`
	Amount          string         `json:"amount,omitempty"`
	OpensAt         *time.Time     `json:"opens_at,omitempty"`
	ClosesAt        *time.Time     `json:"closes_at,omitempty"`
	DeadlineStatus  DeadlineStatus `json:"deadline_status"`
	DeadlineSource  DeadlineSource `json:"deadline_source"`
	Degraded        bool           `json:"degraded,omitempty"`
	Placeholders    []string       `json:"placeholders,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DerivedKey recomputes the dedup key from the entity's current fields.
// It differs from Key only for rows written outside the synchronizer.
func (e Entity) DerivedKey() DedupKey {
	name := Normalize(e.Name)
	switch e.Kind {
	case KindInstitution:
		return DedupKey{Kind: e.Kind, Name: name, Scope: Normalize(e.Province)}
	case KindProgram:
		return DedupKey{Kind: e.Kind, Name: name, Scope: programScope(e.Institution, e.Province)}
	case KindBursary:
		return DedupKey{Kind: e.Kind, Name: name, Scope: Normalize(e.Provider)}
	default:
		return DedupKey{Kind: e.Kind, Name: name}
	}
}

// IsOpenOn reports whether the entity accepts applications on day.
func (e Entity) IsOpenOn(day time.Time) bool {
	if e.DeadlineStatus == StatusClosed {
		return false
	}
	if e.ClosesAt != nil && Day(day).After(*e.ClosesAt) {
		return false
	}
	if e.OpensAt != nil && Day(day).Before(*e.OpensAt) {
		return false
	}
	return true
}

// HasPlaceholder reports whether field still holds a synthesized value.
func (e Entity) HasPlaceholder(field string) bool {
	for _, f := range e.Placeholders {
		if f == field {
			return true
		}
	}
	return false
}

// Window returns the deadline fields of the entity as a window.
func (e Entity) Window() DeadlineWindow {
	return DeadlineWindow{
		OpensAt:  e.OpensAt,
		ClosesAt: e.ClosesAt,
		Status:   e.DeadlineStatus,
		Source:   e.DeadlineSource,
	}
}

// NewEntity converts a classified candidate into a fresh entity.
func NewEntity(id string, c Classified, now time.Time) Entity {
	base := c.Candidate.Common()
	e := Entity{
		ID:             id,
		Kind:           c.Candidate.Kind(),
		Key:            KeyFor(c.Candidate),
		Name:           strings.TrimSpace(base.Name),
		SourceID:       base.SourceID,
		SourceURL:      base.SourceURL,
		Description:    base.Description,
		Contact:        base.Contact,
		OpensAt:        c.Window.OpensAt,
		ClosesAt:       c.Window.ClosesAt,
		DeadlineStatus: c.Window.Status,
		DeadlineSource: c.Window.Source,
		Degraded:       base.Degraded,
		Placeholders:   append([]string(nil), base.Placeholders...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch v := c.Candidate.(type) {
	case *InstitutionCandidate:
		e.Province = v.Province
		e.InstitutionType = v.InstitutionType
		e.ApplicationFee = v.ApplicationFee
	case *ProgramCandidate:
		e.Province = v.Province
		e.Institution = v.Institution
		e.Qualification = v.Qualification
		e.FieldsOfStudy = append([]string(nil), v.FieldsOfStudy...)
	case *BursaryCandidate:
		e.Provider = v.Provider
		e.FieldsOfStudy = append([]string(nil), v.FieldsOfStudy...)
		e.Eligibility = append([]string(nil), v.Eligibility...)
		e.Amount = v.Amount
	}
	return e
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SyncBatchResult is the outcome of synchronizing one batch of candidates.
type SyncBatchResult struct {
	NewEntities  []Entity `json:"new_entities"`
	UpdatedCount int      `json:"updated_count"`
	ErrorCount   int      `json:"error_count"`
	Errors       []string `json:"errors,omitempty"`
	Skipped      int      `json:"skipped"`
}
