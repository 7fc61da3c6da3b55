// Package streak tracks consecutive calendar days of learning activity.
package streak

import (
	"time"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// Status is derived from the gap between today and the last activity day.
// It is never stored.
type Status string

const (
	StatusStart  Status = "start"   // no activity recorded yet
	StatusActive Status = "active"  // already counted today
	StatusAtRisk Status = "at_risk" // last activity yesterday
	StatusBroken Status = "broken"  // two or more days ago
)

// Outcome describes what RecordActivity did to the streak.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeStarted
	OutcomeExtended
	OutcomeRestarted
)

// ErrStreakNotFound is returned for users without any recorded activity.
var ErrStreakNotFound = shared.NewDomainError("streak", "Find", shared.ErrNotFound, shared.CodeNotFound, "no streak recorded")

// Streak is the per-user record.
//
// LongestStreak >= CurrentStreak always holds.
type Streak struct {
	UserID           string
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate time.Time // midnight in the reference timezone

	Version   int64
	UpdatedAt time.Time
}

// New creates the first-day record.
func New(userID string, today time.Time) *Streak {
	return &Streak{
		UserID:           userID,
		CurrentStreak:    1,
		LongestStreak:    1,
		LastActivityDate: today,
		UpdatedAt:        today,
	}
}

// Clone returns a copy.
func (s *Streak) Clone() *Streak {
	cp := *s
	return &cp
}

// Record counts activity on `today`. A repeat on the same day (or on a day
// before the stored one) changes nothing.
func (s *Streak) Record(today time.Time) Outcome {
	switch gap := timeutil.DaysBetween(s.LastActivityDate, today); {
	case gap <= 0:
		return OutcomeUnchanged
	case gap == 1:
		s.CurrentStreak++
		s.LongestStreak = max(s.LongestStreak, s.CurrentStreak)
		s.LastActivityDate = today
		return OutcomeExtended
	default:
		s.CurrentStreak = 1
		s.LongestStreak = max(s.LongestStreak, 1)
		s.LastActivityDate = today
		return OutcomeRestarted
	}
}

// CurrentAt is the streak length as seen on `today`: a broken streak counts
// as zero until the next activity restarts it.
func (s *Streak) CurrentAt(today time.Time) int {
	if timeutil.DaysBetween(s.LastActivityDate, today) > 1 {
		return 0
	}
	return s.CurrentStreak
}

// StatusAt derives the label and the day gap for `today`. A nil streak is
// StatusStart with no gap.
func StatusAt(s *Streak, today time.Time) (Status, *int) {
	if s == nil {
		return StatusStart, nil
	}
	gap := timeutil.DaysBetween(s.LastActivityDate, today)
	if gap < 0 {
		gap = 0
	}
	switch {
	case gap == 0:
		return StatusActive, &gap
	case gap == 1:
		return StatusAtRisk, &gap
	default:
		return StatusBroken, &gap
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// RankBy selects the leaderboard ordering field.
type RankBy string

const (
	RankByCurrent RankBy = "current"
	RankByLongest RankBy = "longest"
)

// ParseRankBy parses a leaderboard type; empty means current.
func ParseRankBy(s string) (RankBy, error) {
	switch RankBy(s) {
	case "", RankByCurrent:
		return RankByCurrent, nil
	case RankByLongest:
		return RankByLongest, nil
	}
	return "", shared.NewValidationError("ParseRankBy", "leaderboard type must be %q or %q", RankByCurrent, RankByLongest)
}

// LeaderboardLimit bounds leaderboard sizes.
var LeaderboardLimit = shared.Limit{Default: 10, Max: 100}

// Less orders a before b on `today`: higher field first, then more recent
// activity, then user id so the order is total. Current streaks are compared
// by CurrentAt.
func Less(a, b *Streak, by RankBy, today time.Time) bool {
	av, bv := a.CurrentAt(today), b.CurrentAt(today)
	if by == RankByLongest {
		av, bv = a.LongestStreak, b.LongestStreak
	}
	if av != bv {
		return av > bv
	}
	if !a.LastActivityDate.Equal(b.LastActivityDate) {
		return a.LastActivityDate.After(b.LastActivityDate)
	}
	return a.UserID < b.UserID
}

// Snapshot is the read shape of a user's streak on a given day.
type Snapshot struct {
	UserID                string
	CurrentStreak         int
	LongestStreak         int
	Status                Status
	DaysSinceLastActivity *int
	LastActivityDate      *time.Time
}

// SnapshotAt builds the snapshot for `today`. A nil streak yields the
// zero-valued start snapshot.
func SnapshotAt(s *Streak, userID string, today time.Time) Snapshot {
	status, gap := StatusAt(s, today)
	snap := Snapshot{UserID: userID, Status: status, DaysSinceLastActivity: gap}
	if s != nil {
		last := s.LastActivityDate
		snap.CurrentStreak = s.CurrentAt(today)
		snap.LongestStreak = s.LongestStreak
		snap.LastActivityDate = &last
	}
	return snap
}
