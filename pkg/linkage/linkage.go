// Package linkage decides which golden record, if any, a canonical entity belongs to.
package linkage

import (
	"context"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Matcher finds the existing golden record for a canonical entity. A nil
// record with a nil error means a new golden record should be created.
type Matcher interface {
	FindExisting(ctx context.Context, canonical *models.CanonicalEntity) (*models.ResolvedEntity, error)
	// IdentityKey names the identity cluster the canonical entity would join.
	// Resolutions sharing a key must not run concurrently.
	IdentityKey(canonical *models.CanonicalEntity) string
}

type RegistrationNumberFinder interface {
	FindByRegistrationNumber(ctx context.Context, registrationNumber string) (*models.ResolvedEntity, error)
}

type PayloadLinkFinder interface {
	FindByPayloadID(ctx context.Context, payloadID string) (*models.ResolvedEntity, error)
}

// RegistrationNumberMatcher links on exact registration number equality
type RegistrationNumberMatcher struct {
	finder RegistrationNumberFinder
}

func NewRegistrationNumberMatcher(finder RegistrationNumberFinder) *RegistrationNumberMatcher {
	return &RegistrationNumberMatcher{finder: finder}
}

func (m *RegistrationNumberMatcher) FindExisting(ctx context.Context, canonical *models.CanonicalEntity) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.RegistrationNumberMatcher.FindExisting")
	defer span.End()

	if canonical.RegistrationNumber == nil || *canonical.RegistrationNumber == "" {
		return nil, nil
	}
	return notFoundAsNil(m.finder.FindByRegistrationNumber(ctx, *canonical.RegistrationNumber))
}

func (m *RegistrationNumberMatcher) IdentityKey(canonical *models.CanonicalEntity) string {
	if canonical.RegistrationNumber == nil || *canonical.RegistrationNumber == "" {
		return payloadKey(canonical)
	}
	return "registration_number:" + *canonical.RegistrationNumber
}

// PayloadLinkMatcher links a canonical entity to the golden record its
// payload was previously resolved into, so re-driving a payload without a
// registration number updates the same record instead of creating another.
type PayloadLinkMatcher struct {
	finder PayloadLinkFinder
}

func NewPayloadLinkMatcher(finder PayloadLinkFinder) *PayloadLinkMatcher {
	return &PayloadLinkMatcher{finder: finder}
}

func (m *PayloadLinkMatcher) FindExisting(ctx context.Context, canonical *models.CanonicalEntity) (*models.ResolvedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.PayloadLinkMatcher.FindExisting")
	defer span.End()

	if canonical.PayloadID == "" {
		return nil, nil
	}
	return notFoundAsNil(m.finder.FindByPayloadID(ctx, canonical.PayloadID))
}

func (m *PayloadLinkMatcher) IdentityKey(canonical *models.CanonicalEntity) string {
	return payloadKey(canonical)
}

// ChainMatcher asks each matcher in order and returns the first match.
// The identity key comes from the first matcher.
type ChainMatcher struct {
	matchers []Matcher
}

func NewChainMatcher(matchers ...Matcher) *ChainMatcher {
	return &ChainMatcher{matchers: matchers}
}

func (m *ChainMatcher) FindExisting(ctx context.Context, canonical *models.CanonicalEntity) (*models.ResolvedEntity, error) {
	for _, matcher := range m.matchers {
		existing, err := matcher.FindExisting(ctx, canonical)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, nil
}

func (m *ChainMatcher) IdentityKey(canonical *models.CanonicalEntity) string {
	if len(m.matchers) == 0 {
		return payloadKey(canonical)
	}
	return m.matchers[0].IdentityKey(canonical)
}

func payloadKey(canonical *models.CanonicalEntity) string {
	return "payload:" + canonical.PayloadID
}

func notFoundAsNil(entity *models.ResolvedEntity, err error) (*models.ResolvedEntity, error) {
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}
