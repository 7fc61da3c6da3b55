package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
// Rows are unique per (user_id, content_id).
type ProgressRepository struct {
	conn *Connection
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `
	id, user_id, content_id, module_id, content_type, status, progress_percentage,
	score, max_score, started_at, completed_at, last_accessed_at, version, updated_at`

// Get returns the row for (userID, contentID).
func (r *ProgressRepository) Get(ctx context.Context, userID, contentID string) (*progress.ContentProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM content_progress WHERE user_id = $1 AND content_id = $2`

	p, err := scanProgress(r.conn.QueryRow(ctx, query, userID, contentID))
	if IsNoRows(err) {
		return nil, progress.ErrProgressNotFound
	}
	if err != nil {
		return nil, classify("GetProgress", err)
	}
	return p, nil
}

// Create inserts the first row for a (user, content) pair. Losing the race
// against another writer surfaces as a version conflict so the caller re-reads.
func (r *ProgressRepository) Create(ctx context.Context, p *progress.ContentProgress) error {
	query := `
		INSERT INTO content_progress (
			id, user_id, content_id, module_id, content_type, status, progress_percentage,
			score, max_score, started_at, completed_at, last_accessed_at, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, NOW())
		RETURNING version, updated_at
	`

	err := r.conn.QueryRow(ctx, query,
		p.ID,
		p.UserID,
		p.ContentID,
		p.ModuleID,
		string(p.ContentType),
		string(p.Status),
		p.ProgressPercentage,
		p.Score,
		p.MaxScore,
		p.StartedAt,
		p.CompletedAt,
		p.LastAccessedAt,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrVersionConflict.WithOp("CreateProgress")
		}
		return classify("CreateProgress", err)
	}
	return nil
}

// Update writes p when the stored version matches and bumps it.
func (r *ProgressRepository) Update(ctx context.Context, p *progress.ContentProgress) error {
	query := `
		UPDATE content_progress SET
			status = $1,
			progress_percentage = $2,
			score = $3,
			max_score = $4,
			started_at = $5,
			completed_at = $6,
			last_accessed_at = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = $8 AND content_id = $9 AND version = $10
		RETURNING version, updated_at
	`

	var (
		version   int64
		updatedAt time.Time
	)
	err := r.conn.QueryRow(ctx, query,
		string(p.Status),
		p.ProgressPercentage,
		p.Score,
		p.MaxScore,
		p.StartedAt,
		p.CompletedAt,
		p.LastAccessedAt,
		p.UserID,
		p.ContentID,
		p.Version,
	).Scan(&version, &updatedAt)
	if IsNoRows(err) {
		return shared.ErrVersionConflict.WithOp("UpdateProgress")
	}
	if err != nil {
		return classify("UpdateProgress", err)
	}

	p.Version = version
	p.UpdatedAt = updatedAt
	return nil
}

// ListByUser returns every row of the user.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]*progress.ContentProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM content_progress WHERE user_id = $1 ORDER BY content_id`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, classify("ListProgressByUser", err)
	}
	return scanProgressRows("ListProgressByUser", rows)
}

// ListByUserAndContents returns the user's rows for the given content ids.
func (r *ProgressRepository) ListByUserAndContents(ctx context.Context, userID string, contentIDs []string) ([]*progress.ContentProgress, error) {
	if len(contentIDs) == 0 {
		return []*progress.ContentProgress{}, nil
	}
	query := `
		SELECT ` + progressColumns + `
		FROM content_progress
		WHERE user_id = $1 AND content_id = ANY($2)
		ORDER BY content_id
	`

	rows, err := r.conn.Query(ctx, query, userID, contentIDs)
	if err != nil {
		return nil, classify("ListProgressByContents", err)
	}
	return scanProgressRows("ListProgressByContents", rows)
}

// CountCompleted counts the user's completed rows among contentIDs.
func (r *ProgressRepository) CountCompleted(ctx context.Context, userID string, contentIDs []string) (int, error) {
	if len(contentIDs) == 0 {
		return 0, nil
	}
	query := `
		SELECT COUNT(*)
		FROM content_progress
		WHERE user_id = $1 AND content_id = ANY($2) AND status = 'completed'
	`

	var count int
	if err := r.conn.QueryRow(ctx, query, userID, contentIDs).Scan(&count); err != nil {
		return 0, classify("CountCompleted", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanProgressRows(op string, rows pgx.Rows) ([]*progress.ContentProgress, error) {
	defer rows.Close()

	out := make([]*progress.ContentProgress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func scanProgress(row pgx.Row) (*progress.ContentProgress, error) {
	var (
		p           progress.ContentProgress
		contentType string
		status      string
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ContentID,
		&p.ModuleID,
		&contentType,
		&status,
		&p.ProgressPercentage,
		&p.Score,
		&p.MaxScore,
		&p.StartedAt,
		&p.CompletedAt,
		&p.LastAccessedAt,
		&p.Version,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ContentType = catalog.ContentType(contentType)
	p.Status = progress.Status(status)
	return &p, nil
}
