package opportunity

import "time"

// Kind identifies the canonical entity type a record maps to.
type Kind string

// Entity kinds.
const (
	KindInstitution Kind = "institution"
	KindProgram     Kind = "program"
	KindBursary     Kind = "bursary"
)

// Placeholder field names recorded when extraction had to synthesize a value.
const (
	FieldDescription   = "description"
	FieldEmail         = "contact.email"
	FieldPhone         = "contact.phone"
	FieldWebsite       = "contact.website"
	FieldFieldsOfStudy = "fields_of_study"
)

// Contact holds the reachable channels scraped for a record.
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// Signals records explicit open/closed banners seen on the page.
type Signals struct {
	Open   bool `json:"open,omitempty"`
	Closed bool `json:"closed,omitempty"`
}

// CandidateBase carries the fields every extracted record has.
type CandidateBase struct {
	Name          string
	SourceID      string
	SourceURL     string
	ExtractedAt   time.Time
	DeadlineToken *string
	Degraded      bool
	Description   string
	Contact       Contact
	Signals       Signals
	Placeholders  []string
}

// Common exposes the shared fields of a candidate.
func (b *CandidateBase) Common() *CandidateBase { return b }

// HasPlaceholder reports whether field was synthesized during extraction.
func (b *CandidateBase) HasPlaceholder(field string) bool {
	for _, f := range b.Placeholders {
		if f == field {
			return true
		}
	}
	return false
}

// Candidate is a record extracted from a source before it is deduplicated.
// The set of implementations is closed: InstitutionCandidate, ProgramCandidate
// and BursaryCandidate.
type Candidate interface {
	Common() *CandidateBase
	Kind() Kind
	sealed()
}

// InstitutionCandidate is a university, college or TVET extracted from a source.
type InstitutionCandidate struct {
	CandidateBase
	Province        string
	InstitutionType string
	ApplicationFee  string
}

// Kind implements Candidate.
func (*InstitutionCandidate) Kind() Kind { return KindInstitution }
func (*InstitutionCandidate) sealed()    {}

// ProgramCandidate is a course offered by an institution.
type ProgramCandidate struct {
	CandidateBase
	Institution   string
	Province      string
	Qualification string
	FieldsOfStudy []string
}

// Kind implements Candidate.
func (*ProgramCandidate) Kind() Kind { return KindProgram }
func (*ProgramCandidate) sealed()    {}

// BursaryCandidate is a funding opportunity offered by a provider.
type BursaryCandidate struct {
	CandidateBase
	Provider      string
	FieldsOfStudy []string
	Eligibility   []string
	Amount        string
}

// Kind implements Candidate.
func (*BursaryCandidate) Kind() Kind { return KindBursary }
func (*BursaryCandidate) sealed()    {}

// Classified pairs a candidate with its computed deadline window.
type Classified struct {
	Candidate Candidate
	Window    DeadlineWindow
}
