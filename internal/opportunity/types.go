// Package opportunity defines the domain types shared across the discovery pipeline.
package opportunity

import (
	"net/http"
	"time"
)

// Category groups sources by the kind of records they publish.
type Category string

// Source categories.
const (
	CategoryInstitution Category = "institution"
	CategoryBursary     Category = "bursary"
)

// RenderMode selects how a source page is retrieved.
type RenderMode string

// Render modes understood by the scraper.
const (
	RenderStatic   RenderMode = "static"
	RenderHeadless RenderMode = "headless"
	RenderAuto     RenderMode = "auto"
)

// SourceDescriptor configures one external site to scrape.
type SourceDescriptor struct {
	ID              string           `mapstructure:"id" json:"id" validate:"required"`
	DisplayName     string           `mapstructure:"display_name" json:"display_name" validate:"required"`
	BaseURL         string           `mapstructure:"base_url" json:"base_url" validate:"required,url"`
	AdmissionsURL   string           `mapstructure:"admissions_url" json:"admissions_url,omitempty" validate:"omitempty,url"`
	Category        Category         `mapstructure:"category" json:"category" validate:"required,oneof=institution bursary"`
	Active          bool             `mapstructure:"active" json:"active"`
	Strategy        string           `mapstructure:"strategy" json:"strategy,omitempty"`
	Render          RenderMode       `mapstructure:"render" json:"render,omitempty" validate:"omitempty,oneof=static headless auto"`
	Province        string           `mapstructure:"province" json:"province,omitempty"`
	Provider        string           `mapstructure:"provider" json:"provider,omitempty"`
	InstitutionType string           `mapstructure:"institution_type" json:"institution_type,omitempty"`
	Fallback        []FallbackRecord `mapstructure:"fallback" json:"fallback,omitempty" validate:"dive"`
}

// TargetURL returns the admissions page when configured, otherwise the base URL.
func (s SourceDescriptor) TargetURL() string {
	if s.AdmissionsURL != "" {
		return s.AdmissionsURL
	}
	return s.BaseURL
}

// FallbackRecord is a known-good record synthesized when a source is down
// and degraded mode is enabled.
type FallbackRecord struct {
	Name          string   `mapstructure:"name" json:"name" validate:"required"`
	Description   string   `mapstructure:"description" json:"description,omitempty"`
	Deadline      string   `mapstructure:"deadline" json:"deadline,omitempty"`
	FieldsOfStudy []string `mapstructure:"fields_of_study" json:"fields_of_study,omitempty"`
	Amount        string   `mapstructure:"amount" json:"amount,omitempty"`
}

// FetchRequest captures everything needed to fetch a source page.
type FetchRequest struct {
	SourceID    string
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
