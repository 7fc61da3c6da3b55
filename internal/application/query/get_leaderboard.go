package query

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK QUERIES
// Status of one user and the top-N leaderboard.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the leaderboard parameters.
type GetLeaderboardQuery struct {
	// Limit - number of entries (default 10, max 100).
	Limit int

	// Type - "current" (default) or "longest".
	Type string
}

// Validate normalises the query.
func (q *GetLeaderboardQuery) Validate() (streak.RankBy, error) {
	if q.Limit < 0 {
		return "", shared.NewValidationError("GetLeaderboard", "limit cannot be negative")
	}
	q.Limit = streak.LeaderboardLimit.Clamp(q.Limit)
	return streak.ParseRankBy(q.Type)
}

// LeaderboardEntryDTO is one leaderboard row.
type LeaderboardEntryDTO struct {
	// Rank - 1-based position.
	Rank int `json:"rank"`

	UserID           string `json:"userId"`
	CurrentStreak    int    `json:"currentStreak"`
	LongestStreak    int    `json:"longestStreak"`
	StreakStatus     string `json:"streakStatus"`
	LastActivityDate string `json:"lastActivityDate"`
}

// LeaderboardResult is the body of GET /streak/leaderboard.
type LeaderboardResult struct {
	Type        string                `json:"type"`
	Leaderboard []LeaderboardEntryDTO `json:"leaderboard"`
}

// StreakQueries answers streak reads.
type StreakQueries struct {
	deps    Deps
	streaks streak.Repository
}

// NewStreakQueries creates a new StreakQueries.
func NewStreakQueries(streaks streak.Repository, deps Deps) *StreakQueries {
	return &StreakQueries{deps: deps.withDefaults(), streaks: streaks}
}

// GetStatus derives the user's streak state for today without mutating it.
func (q *StreakQueries) GetStatus(ctx context.Context, userID string) (streak.Snapshot, error) {
	if userID == "" {
		return streak.Snapshot{}, shared.NewValidationError("GetStreakStatus", "userId is required")
	}
	st, err := load(ctx, q.deps, "GetStreak", func(ctx context.Context) (*streak.Streak, error) {
		return q.streaks.Get(ctx, userID)
	})
	if shared.IsNotFound(err) {
		st, err = nil, nil
	}
	if err != nil {
		return streak.Snapshot{}, err
	}
	return streak.SnapshotAt(st, userID, q.deps.Calendar.Today()), nil
}

// Leaderboard returns the top streaks. Ties on the ranked field go to the
// more recently active user, then to the smaller user id.
func (q *StreakQueries) Leaderboard(ctx context.Context, query GetLeaderboardQuery) (_ *LeaderboardResult, err error) {
	ctx, span := startSpan(ctx, "StreakQueries.Leaderboard",
		attribute.Int("limit", query.Limit), attribute.String("type", query.Type))
	defer func() { endSpan(span, err) }()

	by, err := query.Validate()
	if err != nil {
		return nil, err
	}
	today := q.deps.Calendar.Today()
	top, err := load(ctx, q.deps, "TopStreaks", func(ctx context.Context) ([]*streak.Streak, error) {
		return q.streaks.Top(ctx, by, today, query.Limit)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntryDTO, 0, len(top))
	for i, st := range top {
		status, _ := streak.StatusAt(st, today)
		entries = append(entries, LeaderboardEntryDTO{
			Rank:             i + 1,
			UserID:           st.UserID,
			CurrentStreak:    st.CurrentAt(today),
			LongestStreak:    st.LongestStreak,
			StreakStatus:     string(status),
			LastActivityDate: st.LastActivityDate.Format(timeutil.FormatDate),
		})
	}
	return &LeaderboardResult{Type: string(by), Leaderboard: entries}, nil
}
