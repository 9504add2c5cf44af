package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err came from a unique constraint on
// either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// modernc sqlite: "constraint failed: UNIQUE constraint failed: users.email (2067)"
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UniqueViolationColumn returns the column or constraint name involved in a
// unique violation, lowercased, when it can be recovered.
func UniqueViolationColumn(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.ToLower(pgErr.ConstraintName)
	}
	msg := err.Error()
	if i := strings.Index(msg, "UNIQUE constraint failed: "); i >= 0 {
		rest := msg[i+len("UNIQUE constraint failed: "):]
		if j := strings.IndexAny(rest, " ,("); j >= 0 {
			rest = rest[:j]
		}
		return strings.ToLower(rest)
	}
	return ""
}
