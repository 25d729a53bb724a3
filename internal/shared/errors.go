package shared

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input, rejected before any write.
	ErrValidation = errors.New("invalid input")
	// ErrStateConflict occurs when a document is not in a status that permits the action.
	ErrStateConflict = errors.New("document state does not permit this action")
	// ErrStepUpRequired indicates the step-up credential was rejected.
	ErrStepUpRequired = errors.New("step-up verification required")
	// ErrStepUpRateLimited indicates too many failed step-up attempts.
	ErrStepUpRateLimited = errors.New("step-up verification rate limited")
	// ErrTransient marks lock or serialization failures. The caller may retry
	// the whole workflow from scratch; partial retries are never safe because
	// document numbers and stock movements are not idempotent.
	ErrTransient = errors.New("transient database conflict")
)

// Postgres error codes that map to ErrTransient.
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeLockNotAvailable     = "55P03"
)

// MapPgError converts retryable postgres failures into ErrTransient so
// callers can distinguish them from business errors. Other errors pass
// through unchanged.
func MapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeLockNotAvailable:
			return errors.Join(ErrTransient, err)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
