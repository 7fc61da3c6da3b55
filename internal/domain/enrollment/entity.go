// Package enrollment models a user's stateful relationship to one module.
package enrollment

import (
	"time"

	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of an enrollment.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusDropped   Status = "dropped"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusActive, StatusPaused, StatusCompleted, StatusDropped}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusDropped:
		return true
	}
	return false
}

// IsOpen reports whether the status blocks a new enrollment for the same pair.
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusPaused
}

// ParseStatus parses a status filter value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", shared.NewValidationError("ParseStatus", "unknown enrollment status %q", s)
	}
	return st, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment is one user's relationship to one module.
//
// ProgressPercentage is never set directly: it is derived from
// CompletedSections/TotalSections, except that a completed enrollment
// always reports 100.
type Enrollment struct {
	ID                      string
	UserID                  string
	ModuleID                string
	Status                  Status
	CompletedSections       int
	TotalSections           int
	ProgressPercentage      int
	EnrolledAt              time.Time
	LastAccessedAt          time.Time
	EstimatedCompletionDate *time.Time
	CompletedAt             *time.Time

	// Version is the optimistic lock counter; stores bump it on each update.
	Version   int64
	UpdatedAt time.Time
}

// New creates an active enrollment with a snapshot of the module size.
func New(id, userID, moduleID string, totalSections int, now time.Time) *Enrollment {
	if totalSections < 0 {
		totalSections = 0
	}
	return &Enrollment{
		ID:             id,
		UserID:         userID,
		ModuleID:       moduleID,
		Status:         StatusActive,
		TotalSections:  totalSections,
		EnrolledAt:     now,
		LastAccessedAt: now,
		UpdatedAt:      now,
	}
}

// Percentage is round-half-up(completed/total × 100), 0 for an empty module.
func Percentage(completed, total int) int {
	return shared.RoundPercent(completed, total)
}

// Clone returns a deep copy.
func (e *Enrollment) Clone() *Enrollment {
	cp := *e
	if e.EstimatedCompletionDate != nil {
		t := *e.EstimatedCompletionDate
		cp.EstimatedCompletionDate = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// IsActive reports whether progress may be recorded against the enrollment.
func (e *Enrollment) IsActive() bool {
	return e.Status == StatusActive
}

// ─────────────────────────────────────────────────────────────────────────────
// Transitions. Each returns changed=false for an idempotent repeat.
// ─────────────────────────────────────────────────────────────────────────────

// Pause moves active → paused.
func (e *Enrollment) Pause(now time.Time) (bool, error) {
	switch e.Status {
	case StatusPaused:
		return false, nil
	case StatusActive:
		e.Status = StatusPaused
		e.LastAccessedAt = now
		return true, nil
	}
	return false, e.transitionError("Pause", StatusPaused)
}

// Resume moves paused → active.
func (e *Enrollment) Resume(now time.Time) (bool, error) {
	switch e.Status {
	case StatusActive:
		return false, nil
	case StatusPaused:
		e.Status = StatusActive
		e.LastAccessedAt = now
		return true, nil
	}
	return false, e.transitionError("Resume", StatusActive)
}

// Complete moves active or paused → completed and forces 100%.
// CompletedSections is left as it is: an explicit completion records no
// section history.
func (e *Enrollment) Complete(now time.Time) error {
	if !e.Status.IsOpen() {
		return e.transitionError("Complete", StatusCompleted)
	}
	e.Status = StatusCompleted
	e.ProgressPercentage = 100
	e.CompletedAt = &now
	e.EstimatedCompletionDate = nil
	e.LastAccessedAt = now
	return nil
}

// Drop soft-deletes the enrollment. Dropping twice is a no-op; a completed
// enrollment cannot be dropped.
func (e *Enrollment) Drop(now time.Time) (bool, error) {
	switch e.Status {
	case StatusDropped:
		return false, nil
	case StatusActive, StatusPaused:
		e.Status = StatusDropped
		e.EstimatedCompletionDate = nil
		e.LastAccessedAt = now
		return true, nil
	}
	return false, e.transitionError("Unenroll", StatusDropped)
}

// ApplyCount sets the section counts from a recount and rederives the
// percentage. It never changes Status. It reports whether the recount took
// an active enrollment to 100% for the first time.
func (e *Enrollment) ApplyCount(completed, total int, now time.Time) (reachedFull bool) {
	if completed < 0 {
		completed = 0
	}
	if total < 0 {
		total = 0
	}
	before := e.ProgressPercentage

	e.CompletedSections = completed
	e.TotalSections = total
	e.LastAccessedAt = now

	if e.Status == StatusCompleted {
		e.ProgressPercentage = 100
		return false
	}

	e.ProgressPercentage = Percentage(completed, total)
	e.EstimatedCompletionDate = e.estimateCompletion(now)

	return e.Status == StatusActive && before < 100 && e.ProgressPercentage == 100
}

// estimateCompletion extrapolates the pace observed since enrollment.
func (e *Enrollment) estimateCompletion(now time.Time) *time.Time {
	if e.CompletedSections <= 0 || e.TotalSections <= 0 || e.CompletedSections >= e.TotalSections {
		return nil
	}
	elapsed := now.Sub(e.EnrolledAt)
	if elapsed <= 0 {
		return nil
	}
	perSection := elapsed / time.Duration(e.CompletedSections)
	remaining := time.Duration(e.TotalSections - e.CompletedSections)
	eta := now.Add(perSection * remaining)
	return &eta
}

func (e *Enrollment) transitionError(op string, to Status) error {
	return shared.ErrInvalidTransition.WithOp(op).WithMessage("cannot move enrollment from %s to %s", e.Status, to)
}
