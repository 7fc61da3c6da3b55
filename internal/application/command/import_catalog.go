package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT CATALOG COMMAND
// Loads modules and their content from a JSON export of the authoring side.
// Used to seed development stores; re-importing the same file is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogFile is the import document.
type CatalogFile struct {
	Modules []CatalogModule `json:"modules"`
}

// CatalogModule is one module with its content items.
type CatalogModule struct {
	catalog.Module
	Contents []catalog.Content `json:"contents"`
}

// ImportCatalogResult reports what was written.
type ImportCatalogResult struct {
	Modules  int
	Contents int
}

// ImportCatalogHandler handles catalog imports.
type ImportCatalogHandler struct {
	writer catalog.Writer
	deps   Deps
}

// NewImportCatalogHandler creates a new ImportCatalogHandler.
func NewImportCatalogHandler(writer catalog.Writer, deps Deps) *ImportCatalogHandler {
	return &ImportCatalogHandler{writer: writer, deps: deps.withDefaults()}
}

// Handle decodes r and upserts every module and content item. The whole
// document is validated before anything is written.
func (h *ImportCatalogHandler) Handle(ctx context.Context, r io.Reader) (*ImportCatalogResult, error) {
	var file CatalogFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, shared.NewValidationError("ImportCatalog", "decode catalog: %v", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	now := h.deps.Calendar.Now()
	result := &ImportCatalogResult{}
	for i := range file.Modules {
		m := file.Modules[i]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		module := m.Module
		if err := h.deps.Store.Do(ctx, "SaveModule", func(ctx context.Context) error {
			return h.writer.SaveModule(ctx, &module)
		}); err != nil {
			return result, fmt.Errorf("save module %s: %w", m.ID, err)
		}
		result.Modules++

		for j := range m.Contents {
			c := m.Contents[j]
			c.ModuleID = m.ID
			if err := h.deps.Store.Do(ctx, "SaveContent", func(ctx context.Context) error {
				return h.writer.SaveContent(ctx, &c)
			}); err != nil {
				return result, fmt.Errorf("save content %s: %w", c.ID, err)
			}
			result.Contents++
		}
	}

	h.deps.Logger.Info("catalog imported",
		logger.Int("modules", result.Modules),
		logger.Int("contents", result.Contents),
	)
	return result, nil
}

// Validate checks ids, types and that no content id appears twice.
func (f CatalogFile) Validate() error {
	var problems []string
	seen := make(map[string]bool)
	for _, m := range f.Modules {
		if !shared.IsValidID(m.ID) {
			problems = append(problems, fmt.Sprintf("module %q has an invalid id", m.ID))
			continue
		}
		for _, c := range m.Contents {
			if c.ModuleID == "" {
				c.ModuleID = m.ID
			}
			if c.ModuleID != m.ID {
				problems = append(problems, fmt.Sprintf("content %q is listed under module %s but names %s", c.ID, m.ID, c.ModuleID))
				continue
			}
			if err := c.Validate(); err != nil {
				problems = append(problems, shared.MessageOf(err))
				continue
			}
			if seen[c.ID] {
				problems = append(problems, fmt.Sprintf("content %q appears twice", c.ID))
			}
			seen[c.ID] = true
		}
	}
	if len(problems) > 0 {
		return shared.NewValidationError("ImportCatalog", "%s", strings.Join(problems, "; "))
	}
	return nil
}
