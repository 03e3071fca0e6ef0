package pipeline

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolution"
)

// ResolveCanonical merges canonical into its golden record. The identity
// cluster is locked for the whole read-merge-write, and a version conflict
// re-reads and re-merges up to ResolveMaxAttempts times.
func (p *Pipeline) ResolveCanonical(ctx context.Context, canonical *models.CanonicalEntity) (*ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.ResolveCanonical")
	defer span.End()

	start := time.Now()
	key := p.deps.Matcher.IdentityKey(canonical)
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"canonical_id": canonical.ID,
		"payload_id":   canonical.PayloadID,
		"source":       canonical.Source,
		"identity_key": key,
	})

	backoff := p.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		result, err := p.resolveOnce(ctx, key, canonical)
		if err == nil {
			result.Attempts = attempt
			metrics.RecordResolution(canonical.Source, outcome(result), time.Since(start))
			p.project(ctx, canonical, result)

			log.WithFields(map[string]any{
				"entity_id":      result.Entity.ID,
				"version":        result.Entity.Version,
				"is_new":         result.IsNew,
				"changed_fields": len(result.ChangedFields),
				"conflicts":      len(result.Conflicts),
				"attempts":       attempt,
			}).Info("Resolved canonical entity")
			return result, nil
		}

		if !errors.Is(err, errors.ErrConflict) || attempt >= p.opts.ResolveMaxAttempts {
			metrics.RecordResolution(canonical.Source, "error", time.Since(start))
			log.WithError(err).WithField("attempts", attempt).Error("Failed to resolve canonical entity")
			return nil, err
		}

		metrics.ResolutionRetriesTotal.WithLabelValues(canonical.Source).Inc()
		log.WithError(err).WithField("attempt", attempt).Warn("Concurrent update, retrying resolution")

		if backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
}

func (p *Pipeline) resolveOnce(ctx context.Context, key string, canonical *models.CanonicalEntity) (*ResolveResult, error) {
	var out *ResolveResult
	err := lock.WithLock(ctx, p.deps.Locker, key, func(ctx context.Context) error {
		return p.deps.Transactor(ctx, func(ctx context.Context) error {
			result, err := p.merge(ctx, canonical)
			if err != nil {
				return err
			}
			out = result
			return nil
		})
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, errors.NewConflictError("", 0, "identity "+key+" is locked by another resolution")
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) merge(ctx context.Context, canonical *models.CanonicalEntity) (*ResolveResult, error) {
	existing, err := p.deps.Matcher.FindExisting(ctx, canonical)
	if err != nil {
		return nil, err
	}

	merged, err := p.deps.Engine.Resolve(ctx, canonical, existing)
	if err != nil {
		return nil, err
	}
	recordDecisions(canonical.Source, merged)

	entity := merged.Entity
	switch {
	case merged.IsNew:
		entity, err = p.deps.Entities.Create(ctx, entity)
	case merged.Changed:
		entity, err = p.deps.Entities.Update(ctx, entity)
	}
	if err != nil {
		return nil, err
	}

	now := p.now()
	if err := p.deps.Entities.Link(ctx, &models.EntityLink{
		PayloadID:        canonical.PayloadID,
		ResolvedEntityID: entity.ID,
		Source:           canonical.Source,
		LinkedAt:         now,
	}); err != nil {
		return nil, err
	}

	if p.deps.Audits != nil {
		if err := p.deps.Audits.Record(ctx, &models.ResolutionAudit{
			ResolvedEntityID:  entity.ID,
			CanonicalEntityID: canonical.ID,
			PayloadID:         canonical.PayloadID,
			Source:            canonical.Source,
			IsNew:             merged.IsNew,
			ChangedFields:     merged.ChangedFields,
			Conflicts:         merged.Conflicts,
			TieBreakPolicy:    string(p.deps.Engine.Policy()),
			EntityVersion:     entity.Version,
			CreatedAt:         now,
		}); err != nil {
			return nil, err
		}
	}

	return &ResolveResult{
		Entity:        entity,
		IsNew:         merged.IsNew,
		Changed:       merged.Changed,
		ChangedFields: merged.ChangedFields,
		Conflicts:     merged.Conflicts,
	}, nil
}

// project hands a copy of the persisted record to every projector
func (p *Pipeline) project(ctx context.Context, canonical *models.CanonicalEntity, result *ResolveResult) {
	for _, projector := range p.deps.Projectors {
		update := models.GoldenRecordUpdate{
			Entity:            *result.Entity.Clone(),
			IsNew:             result.IsNew,
			ChangedFields:     append([]models.Field(nil), result.ChangedFields...),
			Conflicts:         append([]models.FieldConflict(nil), result.Conflicts...),
			Source:            canonical.Source,
			PayloadID:         canonical.PayloadID,
			CanonicalEntityID: canonical.ID,
		}
		if err := projector.Project(ctx, update); err != nil {
			metrics.ProjectionFailuresTotal.WithLabelValues(projector.Name()).Inc()
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"projector": projector.Name(),
				"entity_id": result.Entity.ID,
			}).Warn("Projection failed")
		}
	}
}

func recordDecisions(source string, result *resolution.Result) {
	for field, decision := range result.Decisions {
		metrics.FieldDecisionsTotal.WithLabelValues(source, string(field), string(decision)).Inc()
	}
	for _, conflict := range result.Conflicts {
		metrics.FieldConflictsTotal.WithLabelValues(conflict.Field).Inc()
	}
}

func outcome(result *ResolveResult) string {
	switch {
	case result.IsNew:
		return "created"
	case result.Changed:
		return "updated"
	}
	return "unchanged"
}
