package streak

import (
	"context"
	"time"
)

// Repository persists one streak row per user.
type Repository interface {
	// Get returns ErrStreakNotFound for users without activity.
	Get(ctx context.Context, userID string) (*Streak, error)

	// Create inserts the first row. Returns shared.ErrVersionConflict if a
	// concurrent writer created it first.
	Create(ctx context.Context, s *Streak) error

	// Update writes s if the stored version still equals s.Version, then
	// bumps s.Version. Returns shared.ErrVersionConflict otherwise.
	Update(ctx context.Context, s *Streak) error

	// Top returns up to limit rows ordered by Less as of today.
	Top(ctx context.Context, by RankBy, today time.Time, limit int) ([]*Streak, error)
}
