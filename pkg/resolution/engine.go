// Package resolution merges canonical entities into golden records using trust weights
package resolution

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// WeightResolver returns the trust weight of every mergeable field for a source
type WeightResolver interface {
	Weights(ctx context.Context, source string, at time.Time) (map[models.Field]int, error)
}

// Decision is what the engine did with one field
type Decision string

const (
	DecisionWrite     Decision = "write"
	DecisionKeep      Decision = "keep"
	DecisionUnchanged Decision = "unchanged"
	DecisionConflict  Decision = "conflict"
	DecisionSkipNull  Decision = "skip_null"
)

// Result is the outcome of merging one canonical entity
type Result struct {
	// Entity is the merged golden record. It is always a fresh copy.
	Entity *models.ResolvedEntity
	// IsNew is true when no existing golden record was supplied
	IsNew bool
	// Changed is true when any field or lineage entry was written
	Changed       bool
	ChangedFields []models.Field
	Conflicts     []models.FieldConflict
	Decisions     map[models.Field]Decision
}

type Engine struct {
	logger  ectologger.Logger
	weights WeightResolver
	policy  TieBreakPolicy
	now     func() time.Time
}

type Option func(*Engine)

func WithTieBreakPolicy(policy TieBreakPolicy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithClock sets the clock used for trust rule lookups and lineage timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(logger ectologger.Logger, weights WeightResolver, opts ...Option) *Engine {
	e := &Engine{
		logger:  logger,
		weights: weights,
		policy:  DefaultTieBreakPolicy,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() TieBreakPolicy {
	return e.policy
}

// Resolve merges canonical into existing, or into a new golden record when
// existing is nil. existing is never mutated. Null canonical fields are
// skipped. A field is overwritten only when the incoming trust weight is
// higher than the stored lineage confidence, or equal and the tie-break
// policy allows it. Writing a value that matches the stored lineage is a no-op.
func (e *Engine) Resolve(ctx context.Context, canonical *models.CanonicalEntity, existing *models.ResolvedEntity) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.Resolve")
	defer span.End()

	now := e.now()
	weights, err := e.weights.Weights(ctx, canonical.Source, now)
	if err != nil {
		return nil, err
	}

	result := &Result{
		IsNew:     existing == nil,
		Decisions: make(map[models.Field]Decision, len(models.MergeableFields)),
	}
	if existing == nil {
		result.Entity = &models.ResolvedEntity{Lineage: models.Lineage{}}
	} else {
		result.Entity = existing.Clone()
		if result.Entity.Lineage == nil {
			result.Entity.Lineage = models.Lineage{}
		}
	}

	for _, field := range models.MergeableFields {
		decision, conflict, err := e.mergeField(result.Entity, canonical, field, weights[field], now)
		if err != nil {
			return nil, err
		}
		result.Decisions[field] = decision
		switch decision {
		case DecisionWrite:
			result.ChangedFields = append(result.ChangedFields, field)
		case DecisionConflict:
			result.Conflicts = append(result.Conflicts, *conflict)
		}
	}
	result.Changed = len(result.ChangedFields) > 0

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"canonical_id":   canonical.ID,
		"source":         canonical.Source,
		"entity_id":      result.Entity.ID,
		"is_new":         result.IsNew,
		"changed_fields": len(result.ChangedFields),
		"conflicts":      len(result.Conflicts),
	}).Debug("Resolved canonical entity")

	return result, nil
}

func (e *Engine) mergeField(
	entity *models.ResolvedEntity,
	canonical *models.CanonicalEntity,
	field models.Field,
	weight int,
	now time.Time,
) (Decision, *models.FieldConflict, error) {
	value, ok := canonical.Value(field)
	if !ok {
		return DecisionSkipNull, nil, nil
	}

	incoming := models.LineageEntry{
		Source:      canonical.Source,
		Value:       value,
		Confidence:  weight,
		PayloadID:   canonical.PayloadID,
		LastUpdated: now,
	}

	prior, hasPrior := entity.Lineage[string(field)]
	if hasPrior {
		if prior.SameOrigin(incoming) {
			return DecisionUnchanged, nil, nil
		}
		switch {
		case weight < prior.Confidence:
			return DecisionKeep, nil, nil
		case weight == prior.Confidence:
			switch e.policy {
			case TieBreakFirstWriteWins:
				return DecisionKeep, nil, nil
			case TieBreakReject:
				if models.ValuesEqual(prior.Value, value) {
					return DecisionKeep, nil, nil
				}
				return DecisionConflict, &models.FieldConflict{
					Field:          string(field),
					CurrentValue:   prior.Value,
					CurrentSource:  prior.Source,
					IncomingValue:  value,
					IncomingSource: canonical.Source,
					Weight:         weight,
					PayloadID:      canonical.PayloadID,
				}, nil
			}
		}
	}

	if err := entity.Set(field, value); err != nil {
		return "", nil, fmt.Errorf("merge %s: %w", field, err)
	}
	entity.Lineage[string(field)] = incoming
	return DecisionWrite, nil, nil
}
