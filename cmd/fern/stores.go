package main

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/fern/internal/repositories/resolutionaudit"
	"github.com/Ramsey-B/fern/internal/repositories/resolvedentity"
	"github.com/Ramsey-B/fern/internal/repositories/sourcepayload"
	"github.com/Ramsey-B/fern/internal/repositories/trustrule"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pipeline"
)

type canonicalStore interface {
	Create(ctx context.Context, entity *models.CanonicalEntity) (*models.CanonicalEntity, error)
	Get(ctx context.Context, id string) (*models.CanonicalEntity, error)
	ListByPayload(ctx context.Context, payloadID string) ([]*models.CanonicalEntity, error)
}

type entityStore interface {
	pipeline.GoldenRecordStore
	Get(ctx context.Context, id string) (*models.ResolvedEntity, error)
	FindByRegistrationNumber(ctx context.Context, registrationNumber string) (*models.ResolvedEntity, error)
	FindByPayloadID(ctx context.Context, payloadID string) (*models.ResolvedEntity, error)
	ListLinks(ctx context.Context, resolvedEntityID string) ([]models.EntityLink, error)
}

type auditStore interface {
	pipeline.AuditRecorder
	ListByEntity(ctx context.Context, resolvedEntityID string, limit int) ([]*models.ResolutionAudit, error)
	ListConflicts(ctx context.Context, limit int) ([]*models.ResolutionAudit, error)
}

type trustRuleStore interface {
	RulesFor(ctx context.Context, source string) ([]models.TrustRule, error)
	List(ctx context.Context, source string) ([]models.TrustRule, error)
	Upsert(ctx context.Context, rule *models.TrustRule) (*models.TrustRule, error)
	Delete(ctx context.Context, id string) error
}

// stores groups the repositories behind one storage driver
type stores struct {
	payloads   pipeline.PayloadStore
	canonical  canonicalStore
	entities   entityStore
	audits     auditStore
	trustRules trustRuleStore
	transactor pipeline.Transactor
}

func memoryStores() *stores {
	return &stores{
		payloads:   sourcepayload.NewMemoryRepository(),
		canonical:  canonicalentity.NewMemoryRepository(),
		entities:   resolvedentity.NewMemoryRepository(),
		audits:     resolutionaudit.NewMemoryRepository(),
		trustRules: trustrule.NewMemoryRepository(),
	}
}

func postgresStores(db database.DB, logger ectologger.Logger) *stores {
	return &stores{
		payloads:   sourcepayload.NewRepository(db, logger),
		canonical:  canonicalentity.NewRepository(db, logger),
		entities:   resolvedentity.NewRepository(db, logger),
		audits:     resolutionaudit.NewRepository(db, logger),
		trustRules: trustrule.NewRepository(db, logger),
		transactor: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return database.RunInTx(ctx, db, fn)
		},
	}
}
