package pipeline

import (
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/notify"
	"github.com/BhekumusaEric/apply4me-sub001/internal/synchronizer"
)

// SourceCounts tallies per-source scrape outcomes.
type SourceCounts struct {
	Total       int `json:"total"`
	OK          int `json:"ok"`
	Degraded    int `json:"degraded"`
	Unavailable int `json:"unavailable"`
}

// RunSummary is the user-visible outcome of one task run.
type RunSummary struct {
	TaskID        string                    `json:"task_id"`
	RunID         string                    `json:"run_id,omitempty"`
	Category      string                    `json:"category,omitempty"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at"`
	Sources       SourceCounts              `json:"sources"`
	Found         int                       `json:"found"`
	Eligible      int                       `json:"eligible"`
	New           int                       `json:"new"`
	Updated       int                       `json:"updated"`
	Errors        int                       `json:"errors"`
	ErrorMessages []string                  `json:"error_messages,omitempty"`
	Notifications notify.Outcome            `json:"notifications"`
	Sweep         *synchronizer.SweepResult `json:"sweep,omitempty"`
}

func (s *RunSummary) fail(msg string) {
	s.Errors++
	s.ErrorMessages = append(s.ErrorMessages, msg)
}
