package query

import (
	"time"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// Wire shapes shared by the read handlers and the HTTP layer.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentDTO is the public view of an enrollment.
type EnrollmentDTO struct {
	ID                      string     `json:"id"`
	UserID                  string     `json:"userId"`
	ModuleID                string     `json:"moduleId"`
	Status                  string     `json:"status"`
	CompletedSections       int        `json:"completedSections"`
	TotalSections           int        `json:"totalSections"`
	ProgressPercentage      int        `json:"progressPercentage"`
	EnrolledAt              time.Time  `json:"enrolledAt"`
	LastAccessedAt          time.Time  `json:"lastAccessedAt"`
	EstimatedCompletionDate *time.Time `json:"estimatedCompletionDate"`
	CompletedAt             *time.Time `json:"completedAt"`
}

// NewEnrollmentDTO maps an enrollment.
func NewEnrollmentDTO(e *enrollment.Enrollment) *EnrollmentDTO {
	if e == nil {
		return nil
	}
	return &EnrollmentDTO{
		ID:                      e.ID,
		UserID:                  e.UserID,
		ModuleID:                e.ModuleID,
		Status:                  string(e.Status),
		CompletedSections:       e.CompletedSections,
		TotalSections:           e.TotalSections,
		ProgressPercentage:      e.ProgressPercentage,
		EnrolledAt:              e.EnrolledAt,
		LastAccessedAt:          e.LastAccessedAt,
		EstimatedCompletionDate: e.EstimatedCompletionDate,
		CompletedAt:             e.CompletedAt,
	}
}

// NewEnrollmentDTOs maps a list of enrollments.
func NewEnrollmentDTOs(list []*enrollment.Enrollment) []*EnrollmentDTO {
	out := make([]*EnrollmentDTO, 0, len(list))
	for _, e := range list {
		out = append(out, NewEnrollmentDTO(e))
	}
	return out
}

// ContentProgressDTO is the public view of a content progress row.
type ContentProgressDTO struct {
	ContentID          string     `json:"contentId"`
	ModuleID           string     `json:"moduleId"`
	ContentType        string     `json:"contentType"`
	Status             string     `json:"status"`
	ProgressPercentage int        `json:"progressPercentage"`
	Score              *float64   `json:"score"`
	MaxScore           *float64   `json:"maxScore"`
	StartedAt          *time.Time `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt"`
	LastAccessedAt     *time.Time `json:"lastAccessedAt"`
}

// NewContentProgressDTO maps a progress row.
func NewContentProgressDTO(p *progress.ContentProgress) *ContentProgressDTO {
	if p == nil {
		return nil
	}
	last := p.LastAccessedAt
	return &ContentProgressDTO{
		ContentID:          p.ContentID,
		ModuleID:           p.ModuleID,
		ContentType:        string(p.ContentType),
		Status:             string(p.Status),
		ProgressPercentage: p.ProgressPercentage,
		Score:              p.Score,
		MaxScore:           p.MaxScore,
		StartedAt:          p.StartedAt,
		CompletedAt:        p.CompletedAt,
		LastAccessedAt:     &last,
	}
}

// ContentItemDTO is one catalog item together with the viewer's progress.
type ContentItemDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Position int    `json:"position"`
	ContentProgressDTO
}

func newContentItemDTO(c catalog.Content, p *progress.ContentProgress) ContentItemDTO {
	item := ContentItemDTO{
		ID:       c.ID,
		Title:    c.Title,
		Type:     string(c.Type),
		Position: c.Position,
	}
	if p != nil {
		item.ContentProgressDTO = *NewContentProgressDTO(p)
		return item
	}
	item.ContentProgressDTO = ContentProgressDTO{
		ContentID:   c.ID,
		ModuleID:    c.ModuleID,
		ContentType: string(c.Type),
		Status:      string(progress.StatusNotStarted),
	}
	return item
}

// ModuleDTO is the public view of a module.
type ModuleDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Published   bool   `json:"published"`
}

// NewModuleDTO maps a module.
func NewModuleDTO(m *catalog.Module) *ModuleDTO {
	if m == nil {
		return nil
	}
	return &ModuleDTO{ID: m.ID, Title: m.Title, Description: m.Description, Published: m.Published}
}

// StreakDTO is the body of GET /streak/status and POST /streak/update.
type StreakDTO struct {
	CurrentStreak         int     `json:"currentStreak"`
	LongestStreak         int     `json:"longestStreak"`
	StreakStatus          string  `json:"streakStatus"`
	DaysSinceLastActivity *int    `json:"daysSinceLastActivity"`
	LastActivityDate      *string `json:"lastActivityDate"`
}

// NewStreakDTO maps a snapshot. Dates are rendered as YYYY-MM-DD.
func NewStreakDTO(s streak.Snapshot) StreakDTO {
	dto := StreakDTO{
		CurrentStreak:         s.CurrentStreak,
		LongestStreak:         s.LongestStreak,
		StreakStatus:          string(s.Status),
		DaysSinceLastActivity: s.DaysSinceLastActivity,
	}
	if s.LastActivityDate != nil {
		d := s.LastActivityDate.Format(timeutil.FormatDate)
		dto.LastActivityDate = &d
	}
	return dto
}
