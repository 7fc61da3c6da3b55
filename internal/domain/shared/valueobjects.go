package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// NewID generates a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// ParseID normalises a UUID identifier, returning a validation error that
// names the field when raw is empty or malformed.
func ParseID(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewValidationError("ParseID", "%s is required", field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", NewValidationError("ParseID", "%s must be a valid UUID", field).Wrap(ErrInvalidID)
	}
	return id.String(), nil
}

// IsValidID reports whether raw is a well-formed UUID.
func IsValidID(raw string) bool {
	return uuid.Validate(strings.TrimSpace(raw)) == nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Limit Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Limit bounds list sizes requested by clients.
type Limit struct {
	Default int
	Max     int
}

// Clamp maps n ≤ 0 to the default and caps it at the maximum.
func (l Limit) Clamp(n int) int {
	if n <= 0 {
		return l.Default
	}
	if n > l.Max {
		return l.Max
	}
	return n
}
