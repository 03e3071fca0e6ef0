package resolutionaudit

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

var columns = []string{
	"id", "resolved_entity_id", "canonical_entity_id", "payload_id", "source", "is_new",
	"changed_fields", "conflicts", "tie_break_policy", "entity_version", "created_at",
}

// DefaultLimit caps list queries when the caller passes no limit
const DefaultLimit = 100

// auditRow maps the jsonb columns that models.ResolutionAudit leaves untagged
type auditRow struct {
	models.ResolutionAudit
	ChangedFields database.JSONB[[]models.Field]         `db:"changed_fields"`
	Conflicts     database.JSONB[[]models.FieldConflict] `db:"conflicts"`
}

func (r auditRow) toModel() *models.ResolutionAudit {
	audit := r.ResolutionAudit
	audit.ChangedFields = r.ChangedFields.GetValue()
	audit.Conflicts = r.Conflicts.GetValue()
	return &audit
}

// Repository persists one audit row per resolution pass
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resolution audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record appends an audit row
func (r *Repository) Record(ctx context.Context, audit *models.ResolutionAudit) error {
	ctx, span := tracing.StartSpan(ctx, "resolutionaudit.Repository.Record")
	defer span.End()

	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	changed := audit.ChangedFields
	if changed == nil {
		changed = []models.Field{}
	}
	conflicts := audit.Conflicts
	if conflicts == nil {
		conflicts = []models.FieldConflict{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("resolution_audits")
	sb.Cols(columns...)
	sb.Values(
		audit.ID, audit.ResolvedEntityID, audit.CanonicalEntityID, audit.PayloadID, audit.Source, audit.IsNew,
		database.JSONB[[]models.Field]{Data: changed},
		database.JSONB[[]models.FieldConflict]{Data: conflicts},
		audit.TieBreakPolicy, audit.EntityVersion, audit.CreatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("resolved_entity_id", audit.ResolvedEntityID).Error("Failed to record resolution audit")
		return database.StorageError("record resolution audit", err)
	}
	return nil
}

// ListByEntity returns the most recent audits for a golden record
func (r *Repository) ListByEntity(ctx context.Context, resolvedEntityID string, limit int) ([]*models.ResolutionAudit, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionaudit.Repository.ListByEntity")
	defer span.End()

	if _, err := uuid.Parse(resolvedEntityID); err != nil {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolution_audits")
	sb.Where(sb.Equal("resolved_entity_id", resolvedEntityID))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb)
}

// ListConflicts returns the most recent audits that left equal-weight conflicts for review
func (r *Repository) ListConflicts(ctx context.Context, limit int) ([]*models.ResolutionAudit, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionaudit.Repository.ListConflicts")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolution_audits")
	sb.Where("conflicts <> '[]'::jsonb")
	sb.OrderBy("created_at").Desc()
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb)
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*models.ResolutionAudit, error) {
	query, args := sb.Build()
	var rows []auditRow
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list resolution audits")
		return nil, database.StorageError("list resolution audits", err)
	}

	audits := make([]*models.ResolutionAudit, 0, len(rows))
	for _, row := range rows {
		audits = append(audits, row.toModel())
	}
	return audits, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
