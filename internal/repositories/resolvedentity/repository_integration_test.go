//go:build integration

package resolvedentity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/repositories/sourcepayload"
	"github.com/Ramsey-B/fern/internal/testutil/containers"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Postgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repo := NewRepository(pg.DB, logger)
	payloads := sourcepayload.NewRepository(pg.DB, logger)
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		pg.Truncate(t)

		created, err := repo.Create(ctx, &models.ResolvedEntity{
			Name:               ptr("Acme"),
			RegistrationNumber: ptr("12345678"),
			RevenueUSD:         ptr(1500000.0),
			Lineage: models.Lineage{
				"name": {Source: "dnb", Value: "Acme", Confidence: 5, PayloadID: "p-1", LastUpdated: time.Now().UTC()},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, created.Version)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", *got.Name)
		assert.Equal(t, 1500000.0, *got.RevenueUSD)
		assert.Nil(t, got.EmployeeCount)
		assert.Equal(t, "dnb", got.Lineage["name"].Source)

		byReg, err := repo.FindByRegistrationNumber(ctx, "12345678")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byReg.ID)

		_, err = repo.FindByRegistrationNumber(ctx, "missing")
		assert.ErrorIs(t, err, errors.ErrNotFound)

		_, err = repo.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("duplicate registration number is a retryable conflict", func(t *testing.T) {
		pg.Truncate(t)

		_, err := repo.Create(ctx, &models.ResolvedEntity{RegistrationNumber: ptr("12345678")})
		require.NoError(t, err)

		_, err = repo.Create(ctx, &models.ResolvedEntity{RegistrationNumber: ptr("12345678")})
		assert.ErrorIs(t, err, errors.ErrConflict)
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("update checks version", func(t *testing.T) {
		pg.Truncate(t)

		created, err := repo.Create(ctx, &models.ResolvedEntity{Name: ptr("Acme")})
		require.NoError(t, err)
		stale := created.Clone()

		created.Name = ptr("Acme Ltd")
		updated, err := repo.Update(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)

		stale.Name = ptr("Acme Inc")
		_, err = repo.Update(ctx, stale)
		assert.ErrorIs(t, err, errors.ErrConflict)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Ltd", *got.Name)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("links", func(t *testing.T) {
		pg.Truncate(t)

		payload, err := payloads.Upsert(ctx, "dnb", "123", json.RawMessage(`{}`), "fp")
		require.NoError(t, err)
		created, err := repo.Create(ctx, &models.ResolvedEntity{Name: ptr("Acme")})
		require.NoError(t, err)

		link := &models.EntityLink{PayloadID: payload.Payload.ID, ResolvedEntityID: created.ID, Source: "dnb", LinkedAt: time.Now().UTC()}
		require.NoError(t, repo.Link(ctx, link))
		require.NoError(t, repo.Link(ctx, link))

		links, err := repo.ListLinks(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, links, 1)

		found, err := repo.FindByPayloadID(ctx, payload.Payload.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("rolled back transaction leaves nothing", func(t *testing.T) {
		pg.Truncate(t)

		var id string
		err := database.RunInTx(ctx, pg.DB, func(ctx context.Context) error {
			created, err := repo.Create(ctx, &models.ResolvedEntity{Name: ptr("Acme")})
			if err != nil {
				return err
			}
			id = created.ID
			return errors.NewConflictError(created.ID, 1, "forced rollback")
		})
		require.Error(t, err)

		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}
