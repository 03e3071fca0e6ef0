package canonicalentity

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

var columns = []string{
	"id", "payload_id", "source", "name", "legal_name", "registration_number",
	"jurisdiction_code", "revenue_usd", "employee_count", "valid_from",
}

// Repository handles canonical entity persistence. Rows are append-only.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a canonical entity
func (r *Repository) Create(ctx context.Context, entity *models.CanonicalEntity) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.Create")
	defer span.End()

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("canonical_entities")
	sb.Cols(columns...)
	sb.Values(
		entity.ID, entity.PayloadID, entity.Source, entity.Name, entity.LegalName, entity.RegistrationNumber,
		entity.JurisdictionCode, entity.RevenueUSD, entity.EmployeeCount, entity.ValidFrom,
	)

	query, args := sb.Build()
	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("payload_id", entity.PayloadID).Error("Failed to create canonical entity")
		return nil, database.StorageError("create canonical entity", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": entity.ID, "payload_id": entity.PayloadID}).Debug("Created canonical entity")
	return entity, nil
}

// Get retrieves a canonical entity by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NewNotFoundError("canonical entity", id)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("canonical_entities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entity models.CanonicalEntity
	if err := r.db.Q(ctx).GetContext(ctx, &entity, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NewNotFoundError("canonical entity", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get canonical entity")
		return nil, database.StorageError("get canonical entity", err)
	}
	return &entity, nil
}

// ListByPayload returns every canonical entity produced from a payload, newest first
func (r *Repository) ListByPayload(ctx context.Context, payloadID string) ([]*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalentity.Repository.ListByPayload")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("canonical_entities")
	sb.Where(sb.Equal("payload_id", payloadID))
	sb.OrderBy("valid_from").Desc()

	query, args := sb.Build()
	var entities []*models.CanonicalEntity
	if err := r.db.Q(ctx).SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("payload_id", payloadID).Error("Failed to list canonical entities")
		return nil, database.StorageError("list canonical entities", err)
	}
	return entities, nil
}
