package resolutionaudit

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_ListByEntityNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Record(ctx, &models.ResolutionAudit{
			ResolvedEntityID: "entity-1",
			EntityVersion:    i + 1,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Record(ctx, &models.ResolutionAudit{ResolvedEntityID: "entity-2", CreatedAt: base}))

	audits, err := repo.ListByEntity(ctx, "entity-1", 2)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, 3, audits[0].EntityVersion)
	assert.Equal(t, 2, audits[1].EntityVersion)
	assert.NotEmpty(t, audits[0].ID)
}

func TestMemoryRepository_ListConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.Record(ctx, &models.ResolutionAudit{
		ResolvedEntityID: "entity-1",
		ChangedFields:    []models.Field{models.FieldName},
	}))
	require.NoError(t, repo.Record(ctx, &models.ResolutionAudit{
		ResolvedEntityID: "entity-1",
		Conflicts: []models.FieldConflict{{
			Field:          "legal_name",
			CurrentValue:   "ACME LTD",
			IncomingValue:  "ACME LIMITED",
			IncomingSource: "companies_house",
			Weight:         90,
		}},
	}))

	conflicts, err := repo.ListConflicts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "legal_name", conflicts[0].Conflicts[0].Field)
}
