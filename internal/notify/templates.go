package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

//go:embed templates/*.gohtml templates/*.txt
var templateFS embed.FS

const urgentDays = 3

var subjects = map[opportunity.NotificationKind]string{
	opportunity.NotifyNewInstitution:   `{{len .Entities}} new institution{{if ne (len .Entities) 1}}s{{end}} on {{.AppName}}`,
	opportunity.NotifyNewBursary:       `{{len .Entities}} new bursar{{if eq (len .Entities) 1}}y{{else}}ies{{end}} on {{.AppName}}`,
	opportunity.NotifyDeadlineReminder: `{{if .Urgent}}Urgent: {{end}}{{len .Entities}} application deadline{{if ne (len .Entities) 1}}s{{end}} closing soon`,
	opportunity.NotifyWeeklyDigest:     `Your {{.AppName}} weekly digest for {{.GeneratedOn}}`,
}

type entityView struct {
	Name          string
	Subtitle      string
	Description   string
	Amount        string
	Website       string
	ClosesOn      string
	DaysRemaining int
	Urgent        bool
	Color         string
}

type templateData struct {
	AppName     string
	Recipient   string
	GeneratedOn string
	Entities    []entityView
	Upcoming    []entityView
	Urgent      bool
}

type renderer struct {
	html    *htmltmpl.Template
	text    *texttmpl.Template
	subject map[opportunity.NotificationKind]*texttmpl.Template
}

func newRenderer() (*renderer, error) {
	html, err := htmltmpl.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttmpl.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	subject := make(map[opportunity.NotificationKind]*texttmpl.Template, len(subjects))
	for kind, src := range subjects {
		t, err := texttmpl.New(string(kind)).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		subject[kind] = t
	}
	return &renderer{html: html, text: text, subject: subject}, nil
}

func (r *renderer) render(kind opportunity.NotificationKind, data templateData) (Message, error) {
	subj, ok := r.subject[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	var s, h, t bytes.Buffer
	if err := subj.Execute(&s, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := r.html.ExecuteTemplate(&h, string(kind)+".gohtml", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := r.text.ExecuteTemplate(&t, string(kind)+".txt", data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}
	return Message{
		Subject:  strings.TrimSpace(s.String()),
		HTMLBody: h.String(),
		TextBody: t.String(),
	}, nil
}

func viewOf(e opportunity.Entity, today time.Time) entityView {
	v := entityView{
		Name:        e.Name,
		Description: e.Description,
		Amount:      e.Amount,
		Website:     e.Contact.Website,
		Color:       "green",
	}
	switch e.Kind {
	case opportunity.KindBursary:
		v.Subtitle = e.Provider
	case opportunity.KindProgram:
		v.Subtitle = e.Institution
	default:
		v.Subtitle = e.Province
	}
	if e.ClosesAt != nil {
		v.ClosesOn = e.ClosesAt.Format("2 January 2006")
		v.DaysRemaining = DaysRemaining(*e.ClosesAt, today)
		switch {
		case v.DaysRemaining <= urgentDays:
			v.Urgent = true
			v.Color = "red"
		case v.DaysRemaining <= 7:
			v.Color = "orange"
		}
	}
	return v
}

// DaysRemaining counts whole days from today until closes. It is zero on
// the closing day itself and never negative.
func DaysRemaining(closes, today time.Time) int {
	c := time.Date(closes.Year(), closes.Month(), closes.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	d := int(c.Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
