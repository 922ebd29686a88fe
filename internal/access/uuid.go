package access

import (
	"strings"

	"github.com/google/uuid"
)

const uuidLength = 36

// ValidUUID reports whether s is a version 4 UUID in canonical 8-4-4-4-12
// form. Letter case is ignored.
func ValidUUID(s string) bool {
	if len(s) != uuidLength {
		return false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}

// NormalizeUUID returns the lowercase form of s if it is a valid UUID.
func NormalizeUUID(s string) (string, bool) {
	if !ValidUUID(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

// NewUUID returns a random version 4 UUID in canonical lowercase form.
func NewUUID() string {
	return uuid.NewString()
}
