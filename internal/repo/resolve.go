package repo

import (
	"strings"

	"github.com/google/uuid"
)

// IsID reports whether a path segment should be treated as a document id.
// Anything that does not parse as a UUID is looked up by name instead.
func IsID(idOrName string) bool {
	_, err := uuid.Parse(strings.TrimSpace(idOrName))
	return err == nil
}
