package command

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Counts at most one learning day per user per calendar day in the
// reference timezone.
// ══════════════════════════════════════════════════════════════════════════════

// DayGuard remembers which (user, day) pairs were already counted. It is an
// optimisation only: a guard that forgets or fails just means the streak row
// is read again, and Streak.Record is idempotent per day anyway.
type DayGuard interface {
	Seen(ctx context.Context, userID string, day time.Time) (bool, error)
	Mark(ctx context.Context, userID string, day time.Time) error
}

// StreakService handles streak writes.
type StreakService struct {
	Deps
	streaks streak.Repository
	guard   DayGuard
	log     *logger.Logger
}

// NewStreakService creates a new StreakService. guard may be nil.
func NewStreakService(streaks streak.Repository, guard DayGuard, deps Deps) *StreakService {
	deps = deps.withDefaults()
	return &StreakService{
		Deps:    deps,
		streaks: streaks,
		guard:   guard,
		log:     deps.Logger.With(logger.Component("streak")),
	}
}

// RecordActivity counts today for the user and returns the resulting
// snapshot.
func (s *StreakService) RecordActivity(ctx context.Context, userID string) (_ streak.Snapshot, err error) {
	ctx, span := startSpan(ctx, "StreakService.RecordActivity", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if err := requireIDs("RecordActivity", userID); err != nil {
		return streak.Snapshot{}, err
	}
	today := s.Calendar.Today()

	if s.guard != nil {
		seen, gerr := s.guard.Seen(ctx, userID, today)
		if gerr != nil {
			s.log.Warn("day guard lookup failed", logger.UserID(userID), logger.Err(gerr))
		}
		if seen {
			cur, err := s.get(ctx, userID)
			if err == nil {
				return streak.SnapshotAt(cur, userID, today), nil
			}
			if !shared.IsNotFound(err) {
				return streak.Snapshot{}, err
			}
			// Guard says counted but the row is gone; fall through and write.
		}
	}

	var (
		result  *streak.Streak
		outcome streak.Outcome
	)
	err = s.merge(ctx, "RecordActivity", func(ctx context.Context) error {
		cur, err := s.get(ctx, userID)
		switch {
		case shared.IsNotFound(err):
			cur = streak.New(userID, today)
			if err := s.Store.Do(ctx, "CreateStreak", func(ctx context.Context) error {
				return s.streaks.Create(ctx, cur)
			}); err != nil {
				return err
			}
			result, outcome = cur, streak.OutcomeStarted
			return nil
		case err != nil:
			return err
		}

		outcome = cur.Record(today)
		if outcome != streak.OutcomeUnchanged {
			if err := s.Store.Do(ctx, "UpdateStreak", func(ctx context.Context) error {
				return s.streaks.Update(ctx, cur)
			}); err != nil {
				return err
			}
		}
		result = cur
		return nil
	})
	if err != nil {
		return streak.Snapshot{}, err
	}

	if s.guard != nil {
		if err := s.guard.Mark(ctx, userID, today); err != nil {
			s.log.Warn("day guard mark failed", logger.UserID(userID), logger.Err(err))
		}
	}

	if outcome != streak.OutcomeUnchanged {
		s.log.Debug("streak updated",
			logger.UserID(userID),
			logger.Int("current", result.CurrentStreak),
			logger.Int("longest", result.LongestStreak),
		)
		s.publish(ctx, shared.NewStreakUpdatedEvent(userID, result.CurrentStreak, result.LongestStreak,
			outcome == streak.OutcomeRestarted, s.Calendar.Now()))
	}

	return streak.SnapshotAt(result, userID, today), nil
}

func (s *StreakService) get(ctx context.Context, userID string) (*streak.Streak, error) {
	return storeValue(ctx, s.Deps, "GetStreak", func(ctx context.Context) (*streak.Streak, error) {
		return s.streaks.Get(ctx, userID)
	})
}
