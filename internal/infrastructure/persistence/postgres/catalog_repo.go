package postgres

import (
	"context"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Reader and catalog.Writer.
type CatalogRepository struct {
	conn *Connection
}

var (
	_ catalog.Reader = (*CatalogRepository)(nil)
	_ catalog.Writer = (*CatalogRepository)(nil)
)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// GetModule returns a module by id.
func (r *CatalogRepository) GetModule(ctx context.Context, moduleID string) (*catalog.Module, error) {
	query := `SELECT id, title, description, published, created_at FROM modules WHERE id = $1`

	var m catalog.Module
	err := r.conn.QueryRow(ctx, query, moduleID).Scan(&m.ID, &m.Title, &m.Description, &m.Published, &m.CreatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrModuleNotFound
	}
	if err != nil {
		return nil, classify("GetModule", err)
	}
	return &m, nil
}

// GetContent returns a content item by id.
func (r *CatalogRepository) GetContent(ctx context.Context, contentID string) (*catalog.Content, error) {
	query := `SELECT id, module_id, title, content_type, position FROM contents WHERE id = $1`

	var (
		c   catalog.Content
		typ string
	)
	err := r.conn.QueryRow(ctx, query, contentID).Scan(&c.ID, &c.ModuleID, &c.Title, &typ, &c.Position)
	if IsNoRows(err) {
		return nil, shared.ErrContentNotFound
	}
	if err != nil {
		return nil, classify("GetContent", err)
	}
	c.Type = catalog.ContentType(typ)
	return &c, nil
}

// ListContents returns the module's content ordered by position.
func (r *CatalogRepository) ListContents(ctx context.Context, moduleID string) ([]catalog.Content, error) {
	query := `
		SELECT id, module_id, title, content_type, position
		FROM contents
		WHERE module_id = $1
		ORDER BY position, id
	`

	rows, err := r.conn.Query(ctx, query, moduleID)
	if err != nil {
		return nil, classify("ListContents", err)
	}
	defer rows.Close()

	out := make([]catalog.Content, 0)
	for rows.Next() {
		var (
			c   catalog.Content
			typ string
		)
		if err := rows.Scan(&c.ID, &c.ModuleID, &c.Title, &typ, &c.Position); err != nil {
			return nil, classify("ListContents", err)
		}
		c.Type = catalog.ContentType(typ)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListContents", err)
	}
	return out, nil
}

// SaveModule upserts a module.
func (r *CatalogRepository) SaveModule(ctx context.Context, m *catalog.Module) error {
	query := `
		INSERT INTO modules (id, title, description, published, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			published = EXCLUDED.published
	`

	var createdAt any
	if !m.CreatedAt.IsZero() {
		createdAt = m.CreatedAt
	}
	_, err := r.conn.Exec(ctx, query, m.ID, m.Title, m.Description, m.Published, createdAt)
	return classify("SaveModule", err)
}

// SaveContent upserts a content item. The module must exist.
func (r *CatalogRepository) SaveContent(ctx context.Context, c *catalog.Content) error {
	query := `
		INSERT INTO contents (id, module_id, title, content_type, position)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (SELECT 1 FROM modules WHERE id = $2)
		ON CONFLICT (id) DO UPDATE SET
			module_id = EXCLUDED.module_id,
			title = EXCLUDED.title,
			content_type = EXCLUDED.content_type,
			position = EXCLUDED.position
	`

	tag, err := r.conn.Exec(ctx, query, c.ID, c.ModuleID, c.Title, string(c.Type), c.Position)
	if err != nil {
		return classify("SaveContent", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrModuleNotFound
	}
	return nil
}

// DeleteContent removes a content item; progress rows stay behind.
func (r *CatalogRepository) DeleteContent(ctx context.Context, contentID string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM contents WHERE id = $1`, contentID)
	return classify("DeleteContent", err)
}
