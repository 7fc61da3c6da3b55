// Package progress models a user's progress through a single content item.
package progress

import (
	"math"
	"time"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// DefaultAutoCompleteThreshold is the reported percentage at which content
// is implicitly completed.
const DefaultAutoCompleteThreshold = 90

// Status is the state of a content item for one user. It only moves forward.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	}
	return 0
}

// ErrProgressNotFound is returned when a user has not touched a content item.
var ErrProgressNotFound = shared.NewDomainError("progress", "Find", shared.ErrNotFound, shared.CodeNotFound, "no progress recorded for this content")

// ContentProgress is one user's state for one content item.
//
// CompletedAt is set if and only if Status is completed.
type ContentProgress struct {
	ID                 string
	UserID             string
	ContentID          string
	ModuleID           string
	ContentType        catalog.ContentType
	Status             Status
	ProgressPercentage int
	Score              *float64
	MaxScore           *float64
	StartedAt          *time.Time
	CompletedAt        *time.Time
	LastAccessedAt     time.Time

	Version   int64
	UpdatedAt time.Time
}

// New creates a not-started row for the content item.
func New(id, userID string, content catalog.Content, now time.Time) *ContentProgress {
	return &ContentProgress{
		ID:             id,
		UserID:         userID,
		ContentID:      content.ID,
		ModuleID:       content.ModuleID,
		ContentType:    content.Type,
		Status:         StatusNotStarted,
		LastAccessedAt: now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy.
func (p *ContentProgress) Clone() *ContentProgress {
	cp := *p
	cp.Score = cloneFloat(p.Score)
	cp.MaxScore = cloneFloat(p.MaxScore)
	cp.StartedAt = cloneTime(p.StartedAt)
	cp.CompletedAt = cloneTime(p.CompletedAt)
	return &cp
}

// IsCompleted reports whether the item is completed.
func (p *ContentProgress) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// HasScore reports whether a normalisable score is present.
func (p *ContentProgress) HasScore() bool {
	return p.Score != nil && p.MaxScore != nil && *p.MaxScore > 0
}

// NormalizedScore returns score/maxScore × 100.
func (p *ContentProgress) NormalizedScore() (float64, bool) {
	if !p.HasScore() {
		return 0, false
	}
	return *p.Score / *p.MaxScore * 100, true
}

// SameState reports whether o carries the same persisted state as p,
// ignoring LastAccessedAt and the storage bookkeeping fields.
func (p *ContentProgress) SameState(o *ContentProgress) bool {
	return p.Status == o.Status &&
		p.ProgressPercentage == o.ProgressPercentage &&
		equalFloat(p.Score, o.Score) &&
		equalFloat(p.MaxScore, o.MaxScore) &&
		equalTime(p.StartedAt, o.StartedAt) &&
		equalTime(p.CompletedAt, o.CompletedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// All of them are safe to re-apply to a freshly read row after a lost
// version race: they merge instead of overwrite.
// ══════════════════════════════════════════════════════════════════════════════

// Start moves not-started → in-progress. Returns false if the row had
// already started.
func (p *ContentProgress) Start(now time.Time) bool {
	p.LastAccessedAt = now
	if p.Status.rank() >= StatusInProgress.rank() {
		return false
	}
	p.Status = StatusInProgress
	p.StartedAt = &now
	return true
}

// Complete marks the item completed. Repeating it on a completed item only
// replaces the score pair when one is given; timestamps stay as they were.
// It reports whether this call performed the transition.
func (p *ContentProgress) Complete(score, maxScore *float64, now time.Time) bool {
	p.LastAccessedAt = now
	if score != nil || maxScore != nil {
		p.Score = cloneFloat(score)
		p.MaxScore = cloneFloat(maxScore)
	}
	if p.IsCompleted() {
		return false
	}
	if p.StartedAt == nil {
		p.StartedAt = &now
	}
	p.Status = StatusCompleted
	p.ProgressPercentage = 100
	p.CompletedAt = &now
	return true
}

// Report merges a reported percentage. The stored value becomes
// max(stored, clamp(pct)); reaching threshold completes the item. Calls on
// a completed item are ignored. It reports whether this call completed the
// item.
func (p *ContentProgress) Report(pct, threshold int, now time.Time) bool {
	p.LastAccessedAt = now
	if p.IsCompleted() {
		return false
	}

	merged := max(p.ProgressPercentage, shared.ClampPercent(pct))
	if merged >= threshold {
		return p.Complete(nil, nil, now)
	}

	p.ProgressPercentage = merged
	if p.Status == StatusNotStarted {
		p.Status = StatusInProgress
		p.StartedAt = &now
	}
	return false
}

// ValidateScore checks an optional score pair.
func ValidateScore(score, maxScore *float64) error {
	if score == nil && maxScore == nil {
		return nil
	}
	if score == nil || maxScore == nil {
		return shared.NewValidationError("ValidateScore", "score and maxScore must be provided together")
	}
	if !finite(*score) || !finite(*maxScore) {
		return shared.NewValidationError("ValidateScore", "score and maxScore must be finite numbers")
	}
	if *maxScore <= 0 {
		return shared.NewValidationError("ValidateScore", "maxScore must be positive")
	}
	if *score < 0 || *score > *maxScore {
		return shared.NewValidationError("ValidateScore", "score must be between 0 and maxScore")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
