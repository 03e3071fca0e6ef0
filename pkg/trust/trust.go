// Package trust resolves how much a source is trusted for a field at a point in time.
package trust

import (
	"context"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Provider returns every trust rule configured for a source, effective or not
type Provider interface {
	RulesFor(ctx context.Context, source string) ([]models.TrustRule, error)
}

// RuleSet answers weight lookups against a Provider
type RuleSet struct {
	provider Provider
}

func NewRuleSet(provider Provider) *RuleSet {
	return &RuleSet{provider: provider}
}

// WeightFor returns the weight of source for field at the given instant.
// An effective rule naming the field wins over an effective wildcard rule, and
// with no effective rule the weight is models.DefaultTrustWeight. Within a
// tier the highest weight wins.
func (s *RuleSet) WeightFor(ctx context.Context, source, field string, at time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "trust.RuleSet.WeightFor")
	defer span.End()

	rules, err := s.provider.RulesFor(ctx, source)
	if err != nil {
		return 0, err
	}
	return Weight(rules, source, field, at), nil
}

// Weights resolves every mergeable field in one provider call
func (s *RuleSet) Weights(ctx context.Context, source string, at time.Time) (map[models.Field]int, error) {
	ctx, span := tracing.StartSpan(ctx, "trust.RuleSet.Weights")
	defer span.End()

	rules, err := s.provider.RulesFor(ctx, source)
	if err != nil {
		return nil, err
	}
	weights := make(map[models.Field]int, len(models.MergeableFields))
	for _, field := range models.MergeableFields {
		weights[field] = Weight(rules, source, string(field), at)
	}
	return weights, nil
}

// Weight applies the lookup tiers to an in-memory rule list
func Weight(rules []models.TrustRule, source, field string, at time.Time) int {
	effective := ectolinq.Filter(rules, func(rule models.TrustRule) bool {
		return rule.Source == source && rule.EffectiveAt(at)
	})

	exact, wildcard := -1, -1
	for _, rule := range effective {
		switch {
		case rule.Field == field:
			if rule.Weight > exact {
				exact = rule.Weight
			}
		case rule.IsWildcard():
			if rule.Weight > wildcard {
				wildcard = rule.Weight
			}
		}
	}
	if exact >= 0 {
		return exact
	}
	if wildcard >= 0 {
		return wildcard
	}
	return models.DefaultTrustWeight
}
