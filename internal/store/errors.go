package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/closuretree/internal/ir"
)

// classify wraps a driver error as STORAGE_ERROR, flagging constraint
// violations. Errors that are already *ir.Error pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *ir.Error
	if errors.As(err, &coded) {
		return err
	}
	return ir.NewStorageError(op, err, isConstraint(err))
}

// isConstraint reports whether err is a uniqueness, check, not-null or
// foreign-key violation in either supported driver.
func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQLSTATE class 23: integrity constraint violation.
		return strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}
