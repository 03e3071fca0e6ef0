package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		retryable bool
		permanent bool
	}{
		{name: "unsupported source", err: NewUnsupportedSourceError("x"), sentinel: ErrUnsupportedSource, permanent: true},
		{name: "missing identifier", err: NewMissingIdentifierError("dnb", "organization.duns"), sentinel: ErrMissingIdentifier, permanent: true},
		{name: "invalid document", err: NewInvalidDocumentError("dnb", "p1", fmt.Errorf("invalid character 'o'")), sentinel: ErrInvalidDocument, permanent: true},
		{name: "conflict", err: NewConflictError("e1", 3, "version changed"), sentinel: ErrConflict, retryable: true},
		{name: "storage", err: NewStorageError("get", fmt.Errorf("connection reset")), sentinel: ErrStorage},
		{name: "storage timeout", err: NewStorageError("get", context.DeadlineExceeded), sentinel: ErrStorage, retryable: true},
		{name: "not found", err: NewNotFoundError("resolved entity", "e1"), sentinel: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("pipeline: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
			assert.Equal(t, tt.permanent, IsPermanent(wrapped))
		})
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	err := NewStorageError("get", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "storage error during get")
}

func TestConflictError_Message(t *testing.T) {
	assert.Equal(t, "resolution conflict: locked", NewConflictError("", 0, "locked").Error())
	assert.Equal(t, "resolution conflict on entity e1 at version 2: version changed", NewConflictError("e1", 2, "version changed").Error())
}
