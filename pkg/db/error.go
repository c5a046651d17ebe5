package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Driver messages signalling a unique-index violation, for drivers that
// predate gorm's TranslateError or bypass it on raw SQL paths.
var duplicateKeyMessages = []string{
	"duplicate key value violates unique constraint", // postgres 23505
	"Error 1062",               // mysql ER_DUP_ENTRY
	"UNIQUE constraint failed", // sqlite 2067
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation,
// regardless of which database engine produced it.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, fragment := range duplicateKeyMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
