package sourcepayload

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

var columns = []string{"id", "source", "source_id", "payload", "fingerprint", "ingested_at"}

// Repository handles source payload persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

// NewRepository creates a new source payload repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upsert stores payload as the current document for (source, sourceID).
// A re-ingest overwrites the document and ingested_at and keeps the ID.
// The document is never validated here.
func (r *Repository) Upsert(ctx context.Context, source, sourceID string, payload json.RawMessage, fingerprint string) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcepayload.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"source":    source,
		"source_id": sourceID,
	})

	query := `
		INSERT INTO source_payloads (id, source, source_id, payload, fingerprint, previous_fingerprint, ingested_at)
		VALUES ($1, $2, $3, $4, $5, '', $6)
		ON CONFLICT (source, source_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			previous_fingerprint = source_payloads.fingerprint,
			fingerprint = EXCLUDED.fingerprint,
			ingested_at = EXCLUDED.ingested_at
		RETURNING
			id, source, source_id, payload, fingerprint, previous_fingerprint, ingested_at,
			(xmax = 0) AS inserted
	`

	var row struct {
		models.SourcePayload
		PreviousFingerprint string `db:"previous_fingerprint"`
		Inserted            bool   `db:"inserted"`
	}

	err := r.db.Q(ctx).GetContext(ctx, &row, query,
		uuid.New().String(), source, sourceID, string(payload), fingerprint, r.now(),
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert source payload")
		return nil, database.StorageError("upsert source payload", err)
	}

	result := &models.IngestResult{
		Payload:   &row.SourcePayload,
		IsNew:     row.Inserted,
		Unchanged: !row.Inserted && fingerprint != "" && row.PreviousFingerprint == fingerprint,
	}

	log.WithFields(map[string]any{
		"id":        row.ID,
		"is_new":    result.IsNew,
		"unchanged": result.Unchanged,
	}).Debug("Upserted source payload")
	return result, nil
}

// Get retrieves a source payload by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.SourcePayload, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcepayload.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NewNotFoundError("source payload", id)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("source_payloads")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var payload models.SourcePayload
	if err := r.db.Q(ctx).GetContext(ctx, &payload, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NewNotFoundError("source payload", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get source payload")
		return nil, database.StorageError("get source payload", err)
	}
	return &payload, nil
}

// GetBySourceID retrieves the current payload for a provider key
func (r *Repository) GetBySourceID(ctx context.Context, source, sourceID string) (*models.SourcePayload, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcepayload.Repository.GetBySourceID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("source_payloads")
	sb.Where(sb.Equal("source", source), sb.Equal("source_id", sourceID))

	query, args := sb.Build()
	var payload models.SourcePayload
	if err := r.db.Q(ctx).GetContext(ctx, &payload, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NewNotFoundError("source payload", source+"/"+sourceID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source payload by source id")
		return nil, database.StorageError("get source payload", err)
	}
	return &payload, nil
}
