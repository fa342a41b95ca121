package opportunity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStoreUnavailable signals that the canonical store cannot be reached.
var ErrStoreUnavailable = errors.New("canonical store unavailable")

// FetchError reports a network or HTTP failure for a whole source.
type FetchError struct {
	SourceID   string
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d: %v", e.SourceID, e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.SourceID, e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ExtractionError reports a per-field parse failure. It never fails a source.
type ExtractionError struct {
	SourceID string
	Field    string
	Cause    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s from %s: %v", e.Field, e.SourceID, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// ClassificationAmbiguity is logged when a deadline token could not be read
// and the heuristic window was used instead.
type ClassificationAmbiguity struct {
	Source string
	Token  string
}

func (e *ClassificationAmbiguity) Error() string {
	return fmt.Sprintf("unparseable deadline %q from %s: using heuristic window", e.Token, e.Source)
}

// DuplicateAmbiguity is logged when a candidate fuzzily matches more than one entity.
type DuplicateAmbiguity struct {
	Key        DedupKey
	MatchedIDs []string
	ChosenID   string
}

func (e *DuplicateAmbiguity) Error() string {
	return fmt.Sprintf("ambiguous duplicate for %s: matched [%s], chose %s",
		e.Key, strings.Join(e.MatchedIDs, ","), e.ChosenID)
}

// PersistenceError reports a storage failure for a single record.
type PersistenceError struct {
	Key   DedupKey
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// NotificationDeliveryError reports a transport failure for one recipient.
type NotificationDeliveryError struct {
	Recipient string
	Kind      NotificationKind
	Cause     error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Kind, e.Recipient, e.Cause)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Cause }

// TaskTimeoutError marks a task run that exceeded its deadline.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
	Cause   error
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

func (e *TaskTimeoutError) Unwrap() error { return e.Cause }
