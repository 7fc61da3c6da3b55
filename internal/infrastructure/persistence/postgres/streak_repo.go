package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Repository for PostgreSQL.
//
// last_activity_date is a DATE column. Values are written as calendar dates
// and read back as midnight in loc, the reference timezone of the service.
type StreakRepository struct {
	conn *Connection
	loc  *time.Location
}

var _ streak.Repository = (*StreakRepository)(nil)

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection, loc *time.Location) *StreakRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakRepository{conn: conn, loc: loc}
}

const streakColumns = `user_id, current_streak, longest_streak, last_activity_date, version, updated_at`

// Get returns the user's streak row.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*streak.Streak, error) {
	query := `SELECT ` + streakColumns + ` FROM streaks WHERE user_id = $1`

	s, err := r.scan(r.conn.QueryRow(ctx, query, userID))
	if IsNoRows(err) {
		return nil, streak.ErrStreakNotFound
	}
	if err != nil {
		return nil, classify("GetStreak", err)
	}
	return s, nil
}

// Create inserts the first row of a user.
func (r *StreakRepository) Create(ctx context.Context, s *streak.Streak) error {
	query := `
		INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_date, version, updated_at)
		VALUES ($1, $2, $3, $4::date, 1, NOW())
		RETURNING version, updated_at
	`

	err := r.conn.QueryRow(ctx, query,
		s.UserID,
		s.CurrentStreak,
		s.LongestStreak,
		r.date(s.LastActivityDate),
	).Scan(&s.Version, &s.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrVersionConflict.WithOp("CreateStreak")
		}
		return classify("CreateStreak", err)
	}
	return nil
}

// Update writes s when the stored version matches and bumps it.
func (r *StreakRepository) Update(ctx context.Context, s *streak.Streak) error {
	query := `
		UPDATE streaks SET
			current_streak = $1,
			longest_streak = $2,
			last_activity_date = $3::date,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = $4 AND version = $5
		RETURNING version, updated_at
	`

	var (
		version   int64
		updatedAt time.Time
	)
	err := r.conn.QueryRow(ctx, query,
		s.CurrentStreak,
		s.LongestStreak,
		r.date(s.LastActivityDate),
		s.UserID,
		s.Version,
	).Scan(&version, &updatedAt)
	if IsNoRows(err) {
		return shared.ErrVersionConflict.WithOp("UpdateStreak")
	}
	if err != nil {
		return classify("UpdateStreak", err)
	}

	s.Version = version
	s.UpdatedAt = updatedAt
	return nil
}

// Top returns up to limit rows ranked by the chosen field. A current streak
// whose last activity is older than yesterday ranks as zero. Ties go to the
// more recent activity date, then the smaller user id, matching streak.Less.
func (r *StreakRepository) Top(ctx context.Context, by streak.RankBy, today time.Time, limit int) ([]*streak.Streak, error) {
	query := `
		SELECT ` + streakColumns + `
		FROM streaks
		ORDER BY CASE WHEN last_activity_date >= $2::date - 1 THEN current_streak ELSE 0 END DESC,
			last_activity_date DESC, user_id ASC
		LIMIT $1
	`
	args := []any{limit, r.date(today)}
	if by == streak.RankByLongest {
		query = `
			SELECT ` + streakColumns + `
			FROM streaks
			ORDER BY longest_streak DESC, last_activity_date DESC, user_id ASC
			LIMIT $1
		`
		args = args[:1]
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("TopStreaks", err)
	}
	defer rows.Close()

	out := make([]*streak.Streak, 0, limit)
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, classify("TopStreaks", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("TopStreaks", err)
	}
	return out, nil
}

func (r *StreakRepository) date(t time.Time) string {
	return t.In(r.loc).Format(timeutil.FormatDate)
}

func (r *StreakRepository) scan(row pgx.Row) (*streak.Streak, error) {
	var (
		s    streak.Streak
		last time.Time
	)
	if err := row.Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &last, &s.Version, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.LastActivityDate = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, r.loc)
	return &s, nil
}
