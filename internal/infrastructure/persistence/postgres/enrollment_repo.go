package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const openEnrollmentIndex = "uq_enrollments_open"

const enrollmentColumns = `
	id, user_id, module_id, status, completed_sections, total_sections,
	progress_percentage, enrolled_at, last_accessed_at, estimated_completion_date,
	completed_at, version, updated_at`

// Create inserts a new enrollment with version 1.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		INSERT INTO enrollments (
			id, user_id, module_id, status, completed_sections, total_sections,
			progress_percentage, enrolled_at, last_accessed_at, estimated_completion_date,
			completed_at, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, NOW())
		RETURNING version, updated_at
	`

	err := r.conn.QueryRow(ctx, query,
		e.ID,
		e.UserID,
		e.ModuleID,
		string(e.Status),
		e.CompletedSections,
		e.TotalSections,
		e.ProgressPercentage,
		e.EnrolledAt,
		e.LastAccessedAt,
		e.EstimatedCompletionDate,
		e.CompletedAt,
	).Scan(&e.Version, &e.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			if constraintOf(err) == openEnrollmentIndex {
				return shared.ErrAlreadyEnrolled
			}
			return shared.ErrVersionConflict.WithOp("CreateEnrollment")
		}
		return classify("CreateEnrollment", err)
	}
	return nil
}

// GetByID returns an enrollment by id.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	return r.scanOne("GetEnrollment", r.conn.QueryRow(ctx, query, id))
}

// FindOpen returns the active or paused enrollment for the pair.
func (r *EnrollmentRepository) FindOpen(ctx context.Context, userID, moduleID string) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = $1 AND module_id = $2 AND status IN ('active', 'paused')
	`
	return r.scanOne("FindOpenEnrollment", r.conn.QueryRow(ctx, query, userID, moduleID))
}

// FindLatest returns the newest enrollment for the pair in any status.
func (r *EnrollmentRepository) FindLatest(ctx context.Context, userID, moduleID string) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = $1 AND module_id = $2
		ORDER BY enrolled_at DESC, id DESC
		LIMIT 1
	`
	return r.scanOne("FindLatestEnrollment", r.conn.QueryRow(ctx, query, userID, moduleID))
}

// Update writes e when the stored version matches and bumps it.
func (r *EnrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		UPDATE enrollments SET
			status = $1,
			completed_sections = $2,
			total_sections = $3,
			progress_percentage = $4,
			last_accessed_at = $5,
			estimated_completion_date = $6,
			completed_at = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $8 AND version = $9
		RETURNING version, updated_at
	`

	var (
		version   int64
		updatedAt time.Time
	)
	err := r.conn.QueryRow(ctx, query,
		string(e.Status),
		e.CompletedSections,
		e.TotalSections,
		e.ProgressPercentage,
		e.LastAccessedAt,
		e.EstimatedCompletionDate,
		e.CompletedAt,
		e.ID,
		e.Version,
	).Scan(&version, &updatedAt)
	if IsNoRows(err) {
		return r.missOrConflict(ctx, e.ID)
	}
	if err != nil {
		// Resuming while another open enrollment exists trips the partial index.
		if IsUniqueViolation(err) && constraintOf(err) == openEnrollmentIndex {
			return shared.ErrAlreadyEnrolled.WithOp("UpdateEnrollment")
		}
		return classify("UpdateEnrollment", err)
	}

	e.Version = version
	e.UpdatedAt = updatedAt
	return nil
}

// missOrConflict tells a deleted row apart from a stale version.
func (r *EnrollmentRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM enrollments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return classify("UpdateEnrollment", err)
	}
	if !exists {
		return shared.ErrEnrollmentNotFound
	}
	return shared.ErrVersionConflict.WithOp("UpdateEnrollment")
}

// ListByUser returns the user's enrollments, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string, filter ...enrollment.Status) ([]*enrollment.Enrollment, error) {
	statuses := make([]string, len(filter))
	for i, s := range filter {
		statuses[i] = string(s)
	}

	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY enrolled_at DESC, id DESC
	`
	rows, err := r.conn.Query(ctx, query, userID, statuses)
	if err != nil {
		return nil, classify("ListEnrollmentsByUser", err)
	}
	return r.scanAll("ListEnrollmentsByUser", rows)
}

// ListByModule returns every enrollment of a module.
func (r *EnrollmentRepository) ListByModule(ctx context.Context, moduleID string) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE module_id = $1
		ORDER BY enrolled_at DESC, id DESC
	`
	rows, err := r.conn.Query(ctx, query, moduleID)
	if err != nil {
		return nil, classify("ListEnrollmentsByModule", err)
	}
	return r.scanAll("ListEnrollmentsByModule", rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *EnrollmentRepository) scanOne(op string, row pgx.Row) (*enrollment.Enrollment, error) {
	e, err := scanEnrollment(row)
	if IsNoRows(err) {
		return nil, shared.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return e, nil
}

func (r *EnrollmentRepository) scanAll(op string, rows pgx.Rows) ([]*enrollment.Enrollment, error) {
	defer rows.Close()

	out := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var (
		e      enrollment.Enrollment
		status string
	)
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.ModuleID,
		&status,
		&e.CompletedSections,
		&e.TotalSections,
		&e.ProgressPercentage,
		&e.EnrolledAt,
		&e.LastAccessedAt,
		&e.EstimatedCompletionDate,
		&e.CompletedAt,
		&e.Version,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = enrollment.Status(status)
	return &e, nil
}

func constraintOf(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
