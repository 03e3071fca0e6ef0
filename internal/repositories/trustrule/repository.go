package trustrule

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

var columns = []string{"id", "source", "field", "weight", "effective_from", "effective_to"}

// Repository handles trust rule persistence and serves as a trust.Provider
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new trust rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// RulesFor returns every rule configured for source regardless of its window
func (r *Repository) RulesFor(ctx context.Context, source string) ([]models.TrustRule, error) {
	ctx, span := tracing.StartSpan(ctx, "trustrule.Repository.RulesFor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("trust_rules")
	sb.Where(sb.Equal("source", source))
	sb.OrderBy("field", "effective_from")

	query, args := sb.Build()
	var rules []models.TrustRule
	if err := r.db.Q(ctx).SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source", source).Error("Failed to load trust rules")
		return nil, database.StorageError("load trust rules", err)
	}
	return rules, nil
}

// List returns all trust rules, optionally filtered by source
func (r *Repository) List(ctx context.Context, source string) ([]models.TrustRule, error) {
	ctx, span := tracing.StartSpan(ctx, "trustrule.Repository.List")
	defer span.End()

	if source != "" {
		return r.RulesFor(ctx, source)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("trust_rules")
	sb.OrderBy("source", "field", "effective_from")

	query, args := sb.Build()
	var rules []models.TrustRule
	if err := r.db.Q(ctx).SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list trust rules")
		return nil, database.StorageError("list trust rules", err)
	}
	return rules, nil
}

// Upsert creates a rule or replaces the weight and end of the rule that
// starts at the same instant for the same (source, field).
func (r *Repository) Upsert(ctx context.Context, rule *models.TrustRule) (*models.TrustRule, error) {
	ctx, span := tracing.StartSpan(ctx, "trustrule.Repository.Upsert")
	defer span.End()

	query := `
		INSERT INTO trust_rules (id, source, field, weight, effective_from, effective_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (source, field, effective_from)
		DO UPDATE SET
			weight = EXCLUDED.weight,
			effective_to = EXCLUDED.effective_to,
			updated_at = EXCLUDED.updated_at
		RETURNING id, source, field, weight, effective_from, effective_to
	`

	id := rule.ID
	if id == "" {
		id = uuid.New().String()
	}

	var stored models.TrustRule
	err := r.db.Q(ctx).GetContext(ctx, &stored, query,
		id, rule.Source, rule.Field, rule.Weight, rule.EffectiveFrom, rule.EffectiveTo, time.Now().UTC(),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source": rule.Source,
			"field":  rule.Field,
		}).Error("Failed to upsert trust rule")
		return nil, database.StorageError("upsert trust rule", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":     stored.ID,
		"source": stored.Source,
		"field":  stored.Field,
		"weight": stored.Weight,
	}).Info("Upserted trust rule")
	return &stored, nil
}

// Delete removes a trust rule
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "trustrule.Repository.Delete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return errors.NewNotFoundError("trust rule", id)
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("trust_rules")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	res, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to delete trust rule")
		return database.StorageError("delete trust rule", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("trust rule", id)
	}
	return nil
}
