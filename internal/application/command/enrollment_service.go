package command

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT SERVICE
// Owns the enrollment lifecycle and the derived module percentage.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentService handles enrollment commands.
type EnrollmentService struct {
	Deps
	enrollments enrollment.Repository
	progress    progress.Repository
	catalog     catalog.Reader
	log         *logger.Logger
}

// NewEnrollmentService creates a new EnrollmentService.
func NewEnrollmentService(
	enrollments enrollment.Repository,
	progressRepo progress.Repository,
	catalogReader catalog.Reader,
	deps Deps,
) *EnrollmentService {
	deps = deps.withDefaults()
	return &EnrollmentService{
		Deps:        deps,
		enrollments: enrollments,
		progress:    progressRepo,
		catalog:     catalogReader,
		log:         deps.Logger.With(logger.Component("enrollment")),
	}
}

// Enroll creates an active enrollment with a snapshot of the module's
// content count.
func (s *EnrollmentService) Enroll(ctx context.Context, userID, moduleID string) (_ *enrollment.Enrollment, err error) {
	ctx, span := startSpan(ctx, "EnrollmentService.Enroll",
		attribute.String("user.id", userID), attribute.String("module.id", moduleID))
	defer func() { endSpan(span, err) }()

	if err := requireIDs("Enroll", userID, moduleID); err != nil {
		return nil, err
	}

	if _, err := s.getModule(ctx, moduleID); err != nil {
		return nil, err
	}
	contents, err := s.listContents(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	e := enrollment.New(shared.NewID(), userID, moduleID, len(contents), s.Calendar.Now())
	if err := s.Store.Do(ctx, "CreateEnrollment", func(ctx context.Context) error {
		return s.enrollments.Create(ctx, e)
	}); err != nil {
		return nil, err
	}

	s.log.Info("user enrolled",
		logger.UserID(userID),
		logger.ModuleID(moduleID),
		logger.EnrollmentID(e.ID),
		logger.Int("total_sections", e.TotalSections),
	)
	s.publish(ctx, shared.NewEnrollmentCreatedEvent(e.ID, userID, moduleID, e.TotalSections, e.EnrolledAt))

	return e, nil
}

// Pause moves an active enrollment to paused. Pausing a paused enrollment
// returns it unchanged.
func (s *EnrollmentService) Pause(ctx context.Context, userID, enrollmentID string) (*enrollment.Enrollment, error) {
	return s.transition(ctx, "Pause", userID, enrollmentID, func(e *enrollment.Enrollment) (bool, error) {
		return e.Pause(s.Calendar.Now())
	})
}

// Resume moves a paused enrollment back to active.
func (s *EnrollmentService) Resume(ctx context.Context, userID, enrollmentID string) (*enrollment.Enrollment, error) {
	return s.transition(ctx, "Resume", userID, enrollmentID, func(e *enrollment.Enrollment) (bool, error) {
		return e.Resume(s.Calendar.Now())
	})
}

// Complete explicitly completes the enrollment and forces 100%.
func (s *EnrollmentService) Complete(ctx context.Context, userID, enrollmentID string) (*enrollment.Enrollment, error) {
	e, err := s.transition(ctx, "Complete", userID, enrollmentID, func(e *enrollment.Enrollment) (bool, error) {
		return true, e.Complete(s.Calendar.Now())
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, shared.NewModuleCompletedEvent(e.ID, e.UserID, e.ModuleID, e.CompletedSections, e.TotalSections, *e.CompletedAt))
	return e, nil
}

// Unenroll soft-drops the enrollment. Progress for the module is rejected
// until the user enrolls again.
func (s *EnrollmentService) Unenroll(ctx context.Context, userID, enrollmentID string) (*enrollment.Enrollment, error) {
	return s.transition(ctx, "Unenroll", userID, enrollmentID, func(e *enrollment.Enrollment) (bool, error) {
		return e.Drop(s.Calendar.Now())
	})
}

// RecomputeProgress recounts completed sections of the open enrollment from
// the module's current content set. Reaching 100% does not complete the
// enrollment; a module.content_finished event prompts the user instead.
func (s *EnrollmentService) RecomputeProgress(ctx context.Context, userID, moduleID string) (_ *enrollment.Enrollment, err error) {
	ctx, span := startSpan(ctx, "EnrollmentService.RecomputeProgress",
		attribute.String("user.id", userID), attribute.String("module.id", moduleID))
	defer func() { endSpan(span, err) }()

	var (
		result      *enrollment.Enrollment
		reachedFull bool
	)
	err = s.merge(ctx, "RecomputeProgress", func(ctx context.Context) error {
		e, err := s.findOpen(ctx, userID, moduleID)
		if err != nil {
			return err
		}
		contents, err := s.listContents(ctx, moduleID)
		if err != nil {
			return err
		}
		completed, err := s.countCompleted(ctx, userID, catalog.IDs(contents))
		if err != nil {
			return err
		}

		reachedFull = e.ApplyCount(completed, len(contents), s.Calendar.Now())
		if err := s.update(ctx, e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reachedFull {
		s.log.Info("all module content finished", logger.UserID(userID), logger.ModuleID(moduleID))
		s.publish(ctx, shared.NewModuleContentFinishedEvent(result.ID, userID, moduleID, result.LastAccessedAt))
	}
	return result, nil
}

// RequireActive returns the user's active enrollment for the module, or
// ErrNotEnrolled when there is none (including a paused one).
func (s *EnrollmentService) RequireActive(ctx context.Context, userID, moduleID string) (*enrollment.Enrollment, error) {
	e, err := s.findOpen(ctx, userID, moduleID)
	if shared.IsNotFound(err) {
		return nil, shared.ErrNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	if !e.IsActive() {
		return nil, shared.ErrNotEnrolled.WithMessage("enrollment for this module is %s", e.Status)
	}
	return e, nil
}

// Get returns one of the caller's enrollments.
func (s *EnrollmentService) Get(ctx context.Context, userID, enrollmentID string) (*enrollment.Enrollment, error) {
	return s.load(ctx, "Get", userID, enrollmentID)
}

// List returns the caller's enrollments, optionally filtered by status.
func (s *EnrollmentService) List(ctx context.Context, userID string, filter ...enrollment.Status) ([]*enrollment.Enrollment, error) {
	return storeValue(ctx, s.Deps, "ListEnrollments", func(ctx context.Context) ([]*enrollment.Enrollment, error) {
		return s.enrollments.ListByUser(ctx, userID, filter...)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

func (s *EnrollmentService) transition(
	ctx context.Context,
	op, userID, enrollmentID string,
	apply func(e *enrollment.Enrollment) (bool, error),
) (_ *enrollment.Enrollment, err error) {
	ctx, span := startSpan(ctx, "EnrollmentService."+op,
		attribute.String("user.id", userID), attribute.String("enrollment.id", enrollmentID))
	defer func() { endSpan(span, err) }()

	var (
		result *enrollment.Enrollment
		from   enrollment.Status
		moved  bool
	)
	err = s.merge(ctx, op, func(ctx context.Context) error {
		e, err := s.load(ctx, op, userID, enrollmentID)
		if err != nil {
			return err
		}
		from = e.Status

		changed, err := apply(e)
		if err != nil {
			return err
		}
		moved = changed
		if changed {
			if err := s.update(ctx, e); err != nil {
				return err
			}
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if moved {
		s.log.Info("enrollment status changed",
			logger.EnrollmentID(result.ID),
			logger.UserID(userID),
			logger.String("from", string(from)),
			logger.String("to", string(result.Status)),
		)
		s.publish(ctx, shared.NewEnrollmentStatusChangedEvent(result.ID, userID, result.ModuleID, string(from), string(result.Status), s.Calendar.Now()))
	}
	return result, nil
}

// load fetches an enrollment and checks that it belongs to userID.
func (s *EnrollmentService) load(ctx context.Context, op, userID, enrollmentID string) (*enrollment.Enrollment, error) {
	if err := requireIDs(op, userID, enrollmentID); err != nil {
		return nil, err
	}
	e, err := storeValue(ctx, s.Deps, "GetEnrollment", func(ctx context.Context) (*enrollment.Enrollment, error) {
		return s.enrollments.GetByID(ctx, enrollmentID)
	})
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, shared.ErrAccessForbidden.WithOp(op).WithMessage("enrollment belongs to another user")
	}
	return e, nil
}

func (s *EnrollmentService) findOpen(ctx context.Context, userID, moduleID string) (*enrollment.Enrollment, error) {
	return storeValue(ctx, s.Deps, "FindOpenEnrollment", func(ctx context.Context) (*enrollment.Enrollment, error) {
		return s.enrollments.FindOpen(ctx, userID, moduleID)
	})
}

func (s *EnrollmentService) update(ctx context.Context, e *enrollment.Enrollment) error {
	return s.Store.Do(ctx, "UpdateEnrollment", func(ctx context.Context) error {
		return s.enrollments.Update(ctx, e)
	})
}

func (s *EnrollmentService) getModule(ctx context.Context, moduleID string) (*catalog.Module, error) {
	return storeValue(ctx, s.Deps, "GetModule", func(ctx context.Context) (*catalog.Module, error) {
		return s.catalog.GetModule(ctx, moduleID)
	})
}

func (s *EnrollmentService) listContents(ctx context.Context, moduleID string) ([]catalog.Content, error) {
	return storeValue(ctx, s.Deps, "ListContents", func(ctx context.Context) ([]catalog.Content, error) {
		return s.catalog.ListContents(ctx, moduleID)
	})
}

func (s *EnrollmentService) countCompleted(ctx context.Context, userID string, contentIDs []string) (int, error) {
	return storeValue(ctx, s.Deps, "CountCompleted", func(ctx context.Context) (int, error) {
		return s.progress.CountCompleted(ctx, userID, contentIDs)
	})
}

// requireIDs rejects empty identifiers. Format checks happen at the API edge.
func requireIDs(op string, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return shared.NewValidationError(op, "identifier is required")
		}
	}
	return nil
}
