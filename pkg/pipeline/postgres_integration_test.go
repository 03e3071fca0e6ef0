//go:build integration

package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/fern/internal/repositories/resolutionaudit"
	"github.com/Ramsey-B/fern/internal/repositories/resolvedentity"
	"github.com/Ramsey-B/fern/internal/repositories/sourcepayload"
	"github.com/Ramsey-B/fern/internal/repositories/trustrule"
	"github.com/Ramsey-B/fern/internal/testutil/containers"
	"github.com/Ramsey-B/fern/pkg/canonicalizer"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postgresHarness struct {
	pipeline *Pipeline
	entities *resolvedentity.Repository
	audits   *resolutionaudit.Repository
}

func newPostgresHarness(t *testing.T, pg *containers.PostgresContainer, locker lock.Locker) *postgresHarness {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	db := pg.DB

	rules := trustrule.NewRepository(db, logger)
	require.NoError(t, trust.Seed(ctx, logger, rules, scenarioRuleList()))

	payloads := sourcepayload.NewRepository(db, logger)
	canonical := canonicalentity.NewRepository(db, logger)
	entities := resolvedentity.NewRepository(db, logger)
	audits := resolutionaudit.NewRepository(db, logger)
	registry := canonicalizer.NewDefaultRegistry()

	p := New(logger, Deps{
		Payloads:   payloads,
		Canonical:  canonical,
		Canonicals: canonicalizer.NewService(logger, registry, payloads, canonical),
		Sources:    registry,
		Matcher: linkage.NewChainMatcher(
			linkage.NewRegistrationNumberMatcher(entities),
			linkage.NewPayloadLinkMatcher(entities),
		),
		Engine:   resolution.NewEngine(logger, trust.NewRuleSet(rules)),
		Entities: entities,
		Audits:   audits,
		Locker:   locker,
		Transactor: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return database.RunInTx(ctx, db, fn)
		},
	}, DefaultOptions())

	return &postgresHarness{pipeline: p, entities: entities, audits: audits}
}

func TestPostgres_Pipeline(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	rdb := containers.NewRedisContainer(t)

	lockers := map[string]func() lock.Locker{
		"memory lock": func() lock.Locker { return lock.NewMemoryLocker(5 * time.Second) },
		"redis lock": func() lock.Locker {
			return lock.NewRedisLocker(rdb.Client, testLogger(), "", lock.Options{TTL: 5 * time.Second, WaitTimeout: 5 * time.Second})
		},
	}

	for name, newLocker := range lockers {
		t.Run(name, func(t *testing.T) {
			t.Run("dnb then companies house", func(t *testing.T) {
				pg.Truncate(t)
				h := newPostgresHarness(t, pg, newLocker())
				ctx := context.Background()

				first, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
				require.NoError(t, err)
				assert.True(t, first.Resolution.IsNew)

				second, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "REG123", json.RawMessage(companiesHouseDocument))
				require.NoError(t, err)
				assert.Equal(t, first.Resolution.Entity.ID, second.Resolution.Entity.ID)

				golden, err := h.entities.Get(ctx, first.Resolution.Entity.ID)
				require.NoError(t, err)
				assert.Equal(t, 2, golden.Version)
				require.NotNil(t, golden.RevenueUSD)
				assert.Equal(t, 1000000.0, *golden.RevenueUSD)
				assert.Equal(t, "dnb", golden.Lineage["revenue_usd"].Source)
				assert.Equal(t, "companies_house", golden.Lineage["legal_name"].Source)

				links, err := h.entities.ListLinks(ctx, golden.ID)
				require.NoError(t, err)
				assert.Len(t, links, 2)

				audits, err := h.audits.ListByEntity(ctx, golden.ID, 0)
				require.NoError(t, err)
				assert.Len(t, audits, 2)

				again, err := h.pipeline.Process(ctx, canonicalizer.SourceCompaniesHouse, "REG123", json.RawMessage(companiesHouseDocument))
				require.NoError(t, err)
				assert.False(t, again.Resolution.Changed)
				assert.Equal(t, 2, again.Resolution.Entity.Version)
			})

			t.Run("concurrent writers", func(t *testing.T) {
				pg.Truncate(t)
				h := newPostgresHarness(t, pg, newLocker())
				ctx := context.Background()

				const workers = 8
				var wg sync.WaitGroup
				errs := make(chan error, workers)
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := h.pipeline.Process(ctx, canonicalizer.SourceDNB, "", json.RawMessage(dnbDocument))
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					require.NoError(t, err)
				}

				golden, err := h.entities.FindByRegistrationNumber(ctx, "REG123")
				require.NoError(t, err)
				assert.Equal(t, 1, golden.Version, "identical documents never bump the version")

				links, err := h.entities.ListLinks(ctx, golden.ID)
				require.NoError(t, err)
				assert.Len(t, links, 1)
			})
		})
	}
}
