package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// LabelLegalEntity is the node label for golden records
const LabelLegalEntity = "LegalEntity"

const upsertLegalEntity = `
	MERGE (e:LegalEntity {id: $id})
	SET e.name = $name,
		e.legal_name = $legal_name,
		e.registration_number = $registration_number,
		e.jurisdiction_code = $jurisdiction_code,
		e.revenue_usd = $revenue_usd,
		e.employee_count = $employee_count,
		e.risk_score = $risk_score,
		e.version = $version,
		e.last_updated = datetime($last_updated)
`

// Writer runs a write query against the graph
type Writer interface {
	Write(ctx context.Context, cypher string, params map[string]any) error
}

// Projector keeps a LegalEntity node in step with each golden record
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{writer: writer, logger: logger}
}

func (p *Projector) Name() string {
	return "graph"
}

// Project upserts the LegalEntity node for update.Entity. Unchanged records are skipped.
func (p *Projector) Project(ctx context.Context, update models.GoldenRecordUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Project")
	defer span.End()

	if !update.Changed() {
		return nil
	}

	entity := update.Entity
	if err := p.writer.Write(ctx, upsertLegalEntity, Params(entity)); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("entity_id", entity.ID).Error("Failed to project golden record to graph")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id": entity.ID,
		"version":   entity.Version,
	}).Debug("Projected golden record to graph")
	return nil
}

// Params builds the node properties for entity. A missing risk score is
// projected as the default so downstream scoring always has a value.
func Params(entity models.ResolvedEntity) map[string]any {
	updated := entity.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return map[string]any{
		"id":                  entity.ID,
		"name":                optional(entity.Name),
		"legal_name":          optional(entity.LegalName),
		"registration_number": optional(entity.RegistrationNumber),
		"jurisdiction_code":   optional(entity.JurisdictionCode),
		"revenue_usd":         optional(entity.RevenueUSD),
		"employee_count":      optional(entity.EmployeeCount),
		"risk_score":          int64(entity.EffectiveRiskScore()),
		"version":             int64(entity.Version),
		"last_updated":        updated.UTC().Format(time.RFC3339Nano),
	}
}

func optional[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
