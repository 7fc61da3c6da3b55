package progress

import "context"

// Repository persists content progress rows keyed by (user, content).
type Repository interface {
	// Get returns ErrProgressNotFound if the user never touched the content.
	Get(ctx context.Context, userID, contentID string) (*ContentProgress, error)

	// Create inserts a new row. Returns shared.ErrVersionConflict if a
	// concurrent writer created the same (user, content) row first.
	Create(ctx context.Context, p *ContentProgress) error

	// Update writes p if the stored version still equals p.Version, then
	// bumps p.Version. Returns shared.ErrVersionConflict otherwise.
	Update(ctx context.Context, p *ContentProgress) error

	// ListByUser returns every row of the user.
	ListByUser(ctx context.Context, userID string) ([]*ContentProgress, error)

	// ListByUserAndContents returns the user's rows for the given content ids.
	ListByUserAndContents(ctx context.Context, userID string, contentIDs []string) ([]*ContentProgress, error)

	// CountCompleted counts the user's completed rows among contentIDs.
	CountCompleted(ctx context.Context, userID string, contentIDs []string) (int, error)
}
