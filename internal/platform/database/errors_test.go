package database

import (
	"context"
	"fmt"
	"testing"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestStorageError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		timeout   bool
		unique    bool
		retryable bool
	}{
		{"context deadline", context.DeadlineExceeded, true, false, true},
		{"wrapped deadline", fmt.Errorf("select: %w", context.DeadlineExceeded), true, false, true},
		{"statement timeout", &pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"}, true, false, true},
		{"unique violation", &pq.Error{Code: "23505"}, false, true, false},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.timeout, IsTimeout(tt.err))
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))

			err := StorageError("get golden record", tt.err)
			assert.ErrorIs(t, err, fernerrors.ErrStorage)
			assert.Equal(t, tt.retryable, fernerrors.IsRetryable(err))
		})
	}
}
