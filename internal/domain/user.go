// Package domain contains room and participant entities with the invariants
// that hold between them. Nothing here locks; callers own the room lock.
package domain

import (
	"strings"
	"unicode/utf8"
)

const MaxNameLen = 64

type UserID string

// NormalizeName trims a display name and checks its length.
// Names are labels only, uniqueness is never checked.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return "", ErrNameTooLong
	}
	return name, nil
}
