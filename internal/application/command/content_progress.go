package command

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT PROGRESS SERVICE
// Start / complete / continuous progress for single content items.
// Every write is monotonic, so a client may retry any call blindly.
// ══════════════════════════════════════════════════════════════════════════════

// StreakRecorder counts a learning day for the user.
type StreakRecorder interface {
	RecordActivity(ctx context.Context, userID string) (streak.Snapshot, error)
}

// ContentProgressService handles content progress commands.
type ContentProgressService struct {
	Deps
	progress    progress.Repository
	catalog     catalog.Reader
	enrollments *EnrollmentService
	streaks     StreakRecorder
	threshold   int
	log         *logger.Logger
}

// NewContentProgressService creates a new ContentProgressService. A
// threshold outside 1..100 falls back to progress.DefaultAutoCompleteThreshold.
// streaks may be nil.
func NewContentProgressService(
	progressRepo progress.Repository,
	catalogReader catalog.Reader,
	enrollments *EnrollmentService,
	streaks StreakRecorder,
	threshold int,
	deps Deps,
) *ContentProgressService {
	deps = deps.withDefaults()
	if threshold <= 0 || threshold > 100 {
		threshold = progress.DefaultAutoCompleteThreshold
	}
	return &ContentProgressService{
		Deps:        deps,
		progress:    progressRepo,
		catalog:     catalogReader,
		enrollments: enrollments,
		streaks:     streaks,
		threshold:   threshold,
		log:         deps.Logger.With(logger.Component("content_progress")),
	}
}

// Threshold returns the auto-completion percentage in effect.
func (s *ContentProgressService) Threshold() int {
	return s.threshold
}

// MarkStarted moves the item to in-progress. A started or completed item is
// returned as it is.
func (s *ContentProgressService) MarkStarted(ctx context.Context, userID, contentID string) (*progress.ContentProgress, error) {
	return s.write(ctx, "MarkStarted", userID, contentID, false, func(p *progress.ContentProgress, now time.Time) bool {
		p.Start(now)
		return false
	})
}

// MarkComplete completes the item and stores the optional score pair. On an
// already completed item only the score pair is replaced.
func (s *ContentProgressService) MarkComplete(ctx context.Context, userID, contentID string, score, maxScore *float64) (*progress.ContentProgress, error) {
	if err := progress.ValidateScore(score, maxScore); err != nil {
		return nil, err
	}
	return s.write(ctx, "MarkComplete", userID, contentID, true, func(p *progress.ContentProgress, now time.Time) bool {
		return p.Complete(score, maxScore, now)
	})
}

// UpdateProgress merges a reported percentage. Values are clamped to
// [0,100]; the stored value only grows; reaching the threshold completes
// the item.
func (s *ContentProgressService) UpdateProgress(ctx context.Context, userID, contentID string, percentage int) (*progress.ContentProgress, error) {
	return s.write(ctx, "UpdateProgress", userID, contentID, true, func(p *progress.ContentProgress, now time.Time) bool {
		return p.Report(percentage, s.threshold, now)
	})
}

// Get returns the user's row for the content item.
func (s *ContentProgressService) Get(ctx context.Context, userID, contentID string) (*progress.ContentProgress, error) {
	if err := requireIDs("GetProgress", userID, contentID); err != nil {
		return nil, err
	}
	if _, err := s.getContent(ctx, contentID); err != nil {
		return nil, err
	}
	return s.get(ctx, userID, contentID)
}

// write runs one read-merge-write cycle for (userID, contentID).
//
// recount forces the enrollment recount even when the row was already
// completed, so a retried call heals a recount that failed after the row had
// been written. content.completed is published as soon as the completing
// write commits and never again for the same row.
func (s *ContentProgressService) write(
	ctx context.Context,
	op, userID, contentID string,
	recount bool,
	mutate func(p *progress.ContentProgress, now time.Time) (completedNow bool),
) (_ *progress.ContentProgress, err error) {
	ctx, span := startSpan(ctx, "ContentProgressService."+op,
		attribute.String("user.id", userID), attribute.String("content.id", contentID))
	defer func() { endSpan(span, err) }()

	if err := requireIDs(op, userID, contentID); err != nil {
		return nil, err
	}
	content, err := s.getContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var (
		result       *progress.ContentProgress
		completedNow bool
	)
	err = s.merge(ctx, op, func(ctx context.Context) error {
		// Checked on every attempt so a conflict retry sees an unenroll
		// that committed in between.
		if _, err := s.enrollments.RequireActive(ctx, userID, content.ModuleID); err != nil {
			return err
		}
		now := s.Calendar.Now()
		cur, err := s.get(ctx, userID, contentID)
		fresh := false
		switch {
		case shared.IsNotFound(err):
			cur = progress.New(shared.NewID(), userID, *content, now)
			fresh = true
		case err != nil:
			return err
		}

		before := cur.Clone()
		completed := mutate(cur, now)
		if !fresh && cur.SameState(before) {
			result, completedNow = before, false
			return nil
		}

		if fresh {
			err = s.Store.Do(ctx, "CreateProgress", func(ctx context.Context) error {
				return s.progress.Create(ctx, cur)
			})
		} else {
			err = s.Store.Do(ctx, "UpdateProgress", func(ctx context.Context) error {
				return s.progress.Update(ctx, cur)
			})
		}
		if err != nil {
			return err
		}
		result, completedNow = cur, completed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow {
		s.log.Info("content completed",
			logger.UserID(userID),
			logger.ContentID(contentID),
			logger.String("content_type", string(content.Type)),
		)
		s.publish(ctx, shared.NewContentCompletedEvent(userID, contentID, content.ModuleID, string(content.Type),
			result.Score, result.MaxScore, *result.CompletedAt))
	}
	if completedNow || (recount && result.IsCompleted()) {
		if _, err := s.enrollments.RecomputeProgress(ctx, userID, content.ModuleID); err != nil {
			return nil, err
		}
	}

	s.recordActivity(ctx, userID)
	return result, nil
}

// recordActivity feeds the streak. Its failures never fail the progress write.
func (s *ContentProgressService) recordActivity(ctx context.Context, userID string) {
	if s.streaks == nil {
		return
	}
	if _, err := s.streaks.RecordActivity(ctx, userID); err != nil {
		s.log.Warn("streak update failed", logger.UserID(userID), logger.Err(err))
	}
}

func (s *ContentProgressService) getContent(ctx context.Context, contentID string) (*catalog.Content, error) {
	return storeValue(ctx, s.Deps, "GetContent", func(ctx context.Context) (*catalog.Content, error) {
		return s.catalog.GetContent(ctx, contentID)
	})
}

func (s *ContentProgressService) get(ctx context.Context, userID, contentID string) (*progress.ContentProgress, error) {
	return storeValue(ctx, s.Deps, "GetProgress", func(ctx context.Context) (*progress.ContentProgress, error) {
		return s.progress.Get(ctx, userID, contentID)
	})
}
