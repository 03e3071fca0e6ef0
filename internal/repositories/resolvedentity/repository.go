package resolvedentity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

var columns = []string{
	"id", "name", "legal_name", "registration_number", "jurisdiction_code", "revenue_usd",
	"employee_count", "risk_score", "lineage_metadata", "version", "created_at", "updated_at",
}

// Repository handles golden record persistence with optimistic concurrency
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

// NewRepository creates a new resolved entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new golden record at version 1. Losing a race for the
// same registration number returns a ConflictRetryableError.
func (r *Repository) Create(ctx context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.Create")
	defer span.End()

	created := entity.Clone()
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Lineage == nil {
		created.Lineage = models.Lineage{}
	}
	now := r.now()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("resolved_entities")
	sb.Cols(columns...)
	sb.Values(
		created.ID, created.Name, created.LegalName, created.RegistrationNumber, created.JurisdictionCode,
		created.RevenueUSD, created.EmployeeCount, created.RiskScore, created.Lineage, created.Version,
		created.CreatedAt, created.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.WithContext(ctx).WithField("registration_number", deref(created.RegistrationNumber)).Warn("Golden record created concurrently")
			return nil, errors.NewConflictError("", 0, "registration number already claimed by another golden record")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create golden record")
		return nil, database.StorageError("create golden record", err)
	}

	r.logger.WithContext(ctx).WithField("id", created.ID).Debug("Created golden record")
	return created, nil
}

// Update writes entity if the stored version still equals entity.Version and
// returns the record at the incremented version.
func (r *Repository) Update(ctx context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.Update")
	defer span.End()

	updated := entity.Clone()
	updated.UpdatedAt = r.now()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("resolved_entities")
	ub.Set(
		ub.Assign("name", updated.Name),
		ub.Assign("legal_name", updated.LegalName),
		ub.Assign("registration_number", updated.RegistrationNumber),
		ub.Assign("jurisdiction_code", updated.JurisdictionCode),
		ub.Assign("revenue_usd", updated.RevenueUSD),
		ub.Assign("employee_count", updated.EmployeeCount),
		ub.Assign("risk_score", updated.RiskScore),
		ub.Assign("lineage_metadata", updated.Lineage),
		ub.Assign("updated_at", updated.UpdatedAt),
		ub.Add("version", 1),
	)
	ub.Where(ub.Equal("id", updated.ID), ub.Equal("version", entity.Version))

	query, args := ub.Build()
	res, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.NewConflictError(updated.ID, entity.Version, "registration number already claimed by another golden record")
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", updated.ID).Error("Failed to update golden record")
		return nil, database.StorageError("update golden record", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, database.StorageError("update golden record", err)
	}
	if n == 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":      updated.ID,
			"version": entity.Version,
		}).Warn("Golden record version changed during resolution")
		return nil, errors.NewConflictError(updated.ID, entity.Version, "version changed")
	}

	updated.Version = entity.Version + 1
	return updated, nil
}

// Get retrieves a golden record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NewNotFoundError("resolved entity", id)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolved_entities")
	sb.Where(sb.Equal("id", id))

	return r.getOne(ctx, sb, id)
}

// FindByRegistrationNumber returns the golden record claiming registrationNumber
func (r *Repository) FindByRegistrationNumber(ctx context.Context, registrationNumber string) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.FindByRegistrationNumber")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolved_entities")
	sb.Where(sb.Equal("registration_number", registrationNumber))

	return r.getOne(ctx, sb, registrationNumber)
}

// FindByPayloadID returns the golden record a payload was last resolved into
func (r *Repository) FindByPayloadID(ctx context.Context, payloadID string) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.FindByPayloadID")
	defer span.End()

	if _, err := uuid.Parse(payloadID); err != nil {
		return nil, errors.NewNotFoundError("resolved entity", payloadID)
	}

	qualified := make([]string, len(columns))
	for i, col := range columns {
		qualified[i] = "re." + col
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(qualified...)
	sb.From("resolved_entities re")
	sb.Join("entity_links el", "el.resolved_entity_id = re.id")
	sb.Where(sb.Equal("el.payload_id", payloadID))

	return r.getOne(ctx, sb, payloadID)
}

// Link records that payloadID was resolved into resolvedEntityID. Re-linking a
// payload moves it to the new golden record.
func (r *Repository) Link(ctx context.Context, link *models.EntityLink) error {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.Link")
	defer span.End()

	query := `
		INSERT INTO entity_links (payload_id, resolved_entity_id, source, linked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payload_id)
		DO UPDATE SET
			resolved_entity_id = EXCLUDED.resolved_entity_id,
			source = EXCLUDED.source,
			linked_at = EXCLUDED.linked_at
	`

	linkedAt := link.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = r.now()
	}

	if _, err := r.db.Q(ctx).ExecContext(ctx, query, link.PayloadID, link.ResolvedEntityID, link.Source, linkedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"payload_id":         link.PayloadID,
			"resolved_entity_id": link.ResolvedEntityID,
		}).Error("Failed to link payload to golden record")
		return database.StorageError("link payload", err)
	}
	return nil
}

// ListLinks returns the payloads resolved into a golden record
func (r *Repository) ListLinks(ctx context.Context, resolvedEntityID string) ([]models.EntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "resolvedentity.Repository.ListLinks")
	defer span.End()

	if _, err := uuid.Parse(resolvedEntityID); err != nil {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("payload_id", "resolved_entity_id", "source", "linked_at")
	sb.From("entity_links")
	sb.Where(sb.Equal("resolved_entity_id", resolvedEntityID))
	sb.OrderBy("linked_at")

	query, args := sb.Build()
	var links []models.EntityLink
	if err := r.db.Q(ctx).SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("resolved_entity_id", resolvedEntityID).Error("Failed to list entity links")
		return nil, database.StorageError("list entity links", err)
	}
	return links, nil
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder, id string) (*models.ResolvedEntity, error) {
	query, args := sb.Build()
	var entity models.ResolvedEntity
	if err := r.db.Q(ctx).GetContext(ctx, &entity, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NewNotFoundError("resolved entity", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get golden record")
		return nil, database.StorageError("get golden record", err)
	}
	return &entity, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
