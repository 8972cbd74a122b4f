package dberrors

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) (string, string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", "", false
	}
	return pgErr.Code, pgErr.ConstraintName, true
}

// IsDuplicateConstraintError checks if the error is a unique violation on the given constraint.
// An empty constraintName matches any unique violation.
func IsDuplicateConstraintError(err error, constraintName string) bool {
	code, constraint, ok := pgCode(err)
	if !ok || code != codeUniqueViolation {
		return false
	}
	return constraintName == "" || constraint == constraintName
}

// IsForeignKeyViolation reports a violated FOREIGN KEY constraint.
func IsForeignKeyViolation(err error) bool {
	code, _, ok := pgCode(err)
	return ok && code == codeForeignKeyViolation
}

// IsRetryable reports errors that are safe to retry by re-running the whole transaction.
func IsRetryable(err error) bool {
	code, _, ok := pgCode(err)
	return ok && (code == codeSerializationFailure || code == codeDeadlockDetected)
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
