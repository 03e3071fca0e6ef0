//go:build integration

package sourcepayload

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/testutil/containers"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Postgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	repo := NewRepository(pg.DB, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	ctx := context.Background()

	first, err := repo.Upsert(ctx, "dnb", "123", json.RawMessage(`{"v": 1}`), "fp1")
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	assert.False(t, first.Unchanged)

	same, err := repo.Upsert(ctx, "dnb", "123", json.RawMessage(`{"v": 1}`), "fp1")
	require.NoError(t, err)
	assert.False(t, same.IsNew)
	assert.True(t, same.Unchanged)
	assert.Equal(t, first.Payload.ID, same.Payload.ID)

	changed, err := repo.Upsert(ctx, "dnb", "123", json.RawMessage(`{"v": 2}`), "fp2")
	require.NoError(t, err)
	assert.False(t, changed.IsNew)
	assert.False(t, changed.Unchanged)

	stored, err := repo.Get(ctx, first.Payload.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v": 2}`, string(stored.Payload))
	assert.Equal(t, "fp2", stored.Fingerprint)

	bySource, err := repo.GetBySourceID(ctx, "dnb", "123")
	require.NoError(t, err)
	assert.Equal(t, first.Payload.ID, bySource.ID)

	_, err = repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
