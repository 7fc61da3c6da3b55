// Package catalog holds the read model of modules and their content items.
// Records are owned by the content-authoring side; this service only reads
// them, apart from bulk imports.
package catalog

import (
	"strings"
	"time"

	"github.com/alem-hub/learnhub/internal/domain/shared"
)

// ContentType classifies a content item.
type ContentType string

const (
	ContentVideo    ContentType = "video"
	ContentLab      ContentType = "lab"
	ContentGame     ContentType = "game"
	ContentDocument ContentType = "document"
)

// AllContentTypes lists every content type in display order.
var AllContentTypes = []ContentType{ContentVideo, ContentLab, ContentGame, ContentDocument}

// IsValid checks if the content type is known.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentVideo, ContentLab, ContentGame, ContentDocument:
		return true
	}
	return false
}

// ParseContentType parses a content type name.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.NewValidationError("ParseContentType", "unknown content type %q", s)
	}
	return t, nil
}

// Module is a unit a user can enroll in.
type Module struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Content is a single consumable item within exactly one module.
type Content struct {
	ID       string      `json:"id"`
	ModuleID string      `json:"moduleId"`
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	Position int         `json:"position"`
}

// Validate checks a content record before it is imported.
func (c Content) Validate() error {
	if !shared.IsValidID(c.ID) || !shared.IsValidID(c.ModuleID) {
		return shared.NewValidationError("ValidateContent", "content %q has an invalid id or module id", c.ID)
	}
	if !c.Type.IsValid() {
		return shared.NewValidationError("ValidateContent", "content %q has unknown type %q", c.ID, c.Type)
	}
	return nil
}

// IDs returns the identifiers of the given contents.
func IDs(contents []Content) []string {
	ids := make([]string, len(contents))
	for i, c := range contents {
		ids[i] = c.ID
	}
	return ids
}
