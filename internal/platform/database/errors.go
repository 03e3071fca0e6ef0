package database

import (
	"context"
	"database/sql"
	"errors"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation = "23505"
	// raised when statement_timeout cancels a query
	pqQueryCanceled = "57014"
)

// IsNoRows reports whether err means the query matched nothing
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a postgres unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

// IsTimeout reports whether err came from a deadline on the store call or a
// statement timeout on the server
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqQueryCanceled
	}
	return false
}

// StorageError wraps a store failure for op. Timeouts are marked retryable.
func StorageError(op string, err error) *fernerrors.StorageError {
	se := fernerrors.NewStorageError(op, err)
	se.Retryable = se.Retryable || IsTimeout(err)
	return se
}
