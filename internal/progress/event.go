package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageSourceDone Stage = "SOURCE_DONE"
)

// SourceStatus mirrors the scraper's per-source outcome.
type SourceStatus string

// Source outcomes carried on SOURCE_DONE events.
const (
	SourceOK          SourceStatus = "ok"
	SourceDegraded    SourceStatus = "degraded"
	SourceUnavailable SourceStatus = "unavailable"
)

// Event is one progress milestone of a task run.
type Event struct {
	// RunID identifies the run; TaskID the task it belongs to.
	RunID  string
	TaskID string
	TS     time.Time
	Stage  Stage
	// SourceID and Status are set on SOURCE_DONE.
	SourceID   string
	Status     SourceStatus
	Candidates int
	// ErrorKind is the fetch error class for unavailable sources.
	ErrorKind string
	Dur       time.Duration
	Note      string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceDone:
		if e.SourceID == "" {
			return errors.New("source event requires source id")
		}
		switch e.Status {
		case SourceOK, SourceDegraded, SourceUnavailable:
		default:
			return fmt.Errorf("unknown source status %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 || e.Candidates < 0 {
		return errors.New("duration and candidates must be >= 0")
	}
	return nil
}
