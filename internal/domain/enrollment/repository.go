package enrollment

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists enrollments.
type Repository interface {
	// Create inserts a new enrollment.
	// Returns shared.ErrAlreadyEnrolled when an active or paused enrollment
	// exists for the same (user, module) pair.
	Create(ctx context.Context, e *Enrollment) error

	// GetByID returns shared.ErrEnrollmentNotFound if absent.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// FindOpen returns the active or paused enrollment for the pair.
	// Returns shared.ErrEnrollmentNotFound if there is none.
	FindOpen(ctx context.Context, userID, moduleID string) (*Enrollment, error)

	// FindLatest returns the most recent enrollment for the pair in any status.
	FindLatest(ctx context.Context, userID, moduleID string) (*Enrollment, error)

	// Update writes e if the stored version still equals e.Version, then
	// bumps e.Version. Returns shared.ErrVersionConflict otherwise.
	Update(ctx context.Context, e *Enrollment) error

	// ListByUser returns the user's enrollments, newest first. An empty
	// filter returns every status.
	ListByUser(ctx context.Context, userID string, filter ...Status) ([]*Enrollment, error)

	// ListByModule returns every enrollment of a module.
	ListByModule(ctx context.Context, moduleID string) ([]*Enrollment, error)
}
