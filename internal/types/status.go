package types

import (
	"fmt"
	"unicode/utf8"
)

// ProcessingStatus is the lifecycle stage of a video's post-upload enrichment.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// MaxReasonLength bounds the diagnostic stored with a failed record.
const MaxReasonLength = 255

func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	switch ProcessingStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return ProcessingStatus(s), nil
	}
	return "", fmt.Errorf("unknown processing status %q", s)
}

func (s ProcessingStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are allowed.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo is the transition table. Statuses only move forward:
// pending -> processing -> completed|failed, plus pending -> failed.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Predecessors lists the statuses from which s may be entered.
func (s ProcessingStatus) Predecessors() []ProcessingStatus {
	var from []ProcessingStatus
	for _, prev := range []ProcessingStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if prev.CanTransitionTo(s) {
			from = append(from, prev)
		}
	}
	return from
}

// ProcessingState is the tagged status variant; Reason is set only when failed.
type ProcessingState struct {
	Status ProcessingStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

func Pending() ProcessingState {
	return ProcessingState{Status: StatusPending}
}

func Failed(reason string) ProcessingState {
	if reason == "" {
		reason = "unknown error"
	}
	if len(reason) > MaxReasonLength {
		// Cut on a rune boundary; Postgres rejects invalid UTF-8.
		cut := MaxReasonLength
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	return ProcessingState{Status: StatusFailed, Reason: reason}
}

// StatusUpdate is a single logical write applied by the processing worker.
// Duration and Thumbnail are required when moving to completed.
type StatusUpdate struct {
	To        ProcessingStatus
	Reason    string
	Duration  *float64
	Thumbnail *string
}

func (u StatusUpdate) Validate() error {
	switch u.To {
	case StatusProcessing:
		return nil
	case StatusCompleted:
		if u.Duration == nil || u.Thumbnail == nil {
			return fmt.Errorf("completed update requires duration and thumbnail")
		}
		return nil
	case StatusFailed:
		if u.Reason == "" {
			return fmt.Errorf("failed update requires a reason")
		}
		return nil
	}
	return fmt.Errorf("cannot transition to %q", u.To)
}
