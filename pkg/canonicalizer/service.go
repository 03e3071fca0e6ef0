package canonicalizer

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

type PayloadReader interface {
	Get(ctx context.Context, id string) (*models.SourcePayload, error)
}

type CanonicalWriter interface {
	Create(ctx context.Context, entity *models.CanonicalEntity) (*models.CanonicalEntity, error)
}

// Service loads a stored payload, canonicalizes it and appends the result
type Service struct {
	logger    ectologger.Logger
	registry  *Registry
	payloads  PayloadReader
	canonical CanonicalWriter
	now       func() time.Time
}

func NewService(logger ectologger.Logger, registry *Registry, payloads PayloadReader, canonical CanonicalWriter) *Service {
	return &Service{
		logger:    logger,
		registry:  registry,
		payloads:  payloads,
		canonical: canonical,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for ValidFrom
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Canonicalize converts the payload with the given ID into a new canonical entity
func (s *Service) Canonicalize(ctx context.Context, payloadID string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicalizer.Service.Canonicalize")
	defer span.End()

	payload, err := s.payloads.Get(ctx, payloadID)
	if err != nil {
		return nil, err
	}
	return s.CanonicalizePayload(ctx, payload)
}

// CanonicalizePayload converts an already loaded payload
func (s *Service) CanonicalizePayload(ctx context.Context, payload *models.SourcePayload) (*models.CanonicalEntity, error) {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"payload_id": payload.ID,
		"source":     payload.Source,
	})

	entity, err := s.registry.Canonicalize(payload)
	if err != nil {
		log.WithError(err).Warn("Failed to canonicalize payload")
		return nil, err
	}
	entity.ValidFrom = s.now()

	created, err := s.canonical.Create(ctx, entity)
	if err != nil {
		return nil, err
	}

	log.WithField("canonical_id", created.ID).Debug("Canonicalized payload")
	return created, nil
}
