package trust

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb   = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar   = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	epoch = time.Unix(0, 0).UTC()
)

func rule(source, field string, weight int, from time.Time, to *time.Time) models.TrustRule {
	return models.TrustRule{Source: source, Field: field, Weight: weight, EffectiveFrom: from, EffectiveTo: to}
}

func TestWeight(t *testing.T) {
	rules := []models.TrustRule{
		rule("dnb", "revenue_usd", 10, epoch, nil),
		rule("dnb", "*", 5, epoch, nil),
		rule("companies_house", "legal_name", 10, epoch, nil),
		rule("companies_house", "*", 5, epoch, nil),
		rule("orbis", "name", 8, jan, &feb),
		rule("orbis", "name", 3, feb, nil),
		rule("orbis", "*", 2, mar, nil),
		rule("dupe", "name", 4, epoch, nil),
		rule("dupe", "name", 9, epoch, nil),
		rule("zero", "*", 0, epoch, nil),
	}

	tests := []struct {
		name     string
		source   string
		field    string
		at       time.Time
		expected int
	}{
		{"exact field", "dnb", "revenue_usd", jan, 10},
		{"wildcard fallback", "dnb", "legal_name", jan, 5},
		{"other source exact", "companies_house", "legal_name", jan, 10},
		{"other source wildcard", "companies_house", "revenue_usd", jan, 5},
		{"unknown source defaults", "acme", "name", jan, models.DefaultTrustWeight},
		{"before any effective rule", "orbis", "name", jan.Add(-time.Hour), models.DefaultTrustWeight},
		{"inside closed window", "orbis", "name", jan.Add(time.Hour), 8},
		{"both effective at boundary takes highest", "orbis", "name", feb, 8},
		{"after closed window", "orbis", "name", feb.Add(time.Hour), 3},
		{"exact beats later wildcard", "orbis", "name", mar, 3},
		{"wildcard only once effective", "orbis", "legal_name", feb, models.DefaultTrustWeight},
		{"wildcard effective", "orbis", "legal_name", mar, 2},
		{"highest weight within tier", "dupe", "name", jan, 9},
		{"zero weight rule applies", "zero", "name", jan, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Weight(rules, tt.source, tt.field, tt.at))
		})
	}
}

func TestRuleSet_WeightFor(t *testing.T) {
	rs := NewRuleSet(NewStaticProvider(
		rule("dnb", "revenue_usd", 10, epoch, nil),
		rule("dnb", "*", 5, epoch, nil),
	))

	w, err := rs.WeightFor(context.Background(), "dnb", "revenue_usd", jan)
	require.NoError(t, err)
	assert.Equal(t, 10, w)

	weights, err := rs.Weights(context.Background(), "dnb", jan)
	require.NoError(t, err)
	assert.Equal(t, 10, weights[models.FieldRevenueUSD])
	assert.Equal(t, 5, weights[models.FieldLegalName])
	assert.Len(t, weights, len(models.MergeableFields))
}

type failingProvider struct{}

func (failingProvider) RulesFor(context.Context, string) ([]models.TrustRule, error) {
	return nil, errors.New("database down")
}

func TestRuleSet_ProviderError(t *testing.T) {
	_, err := NewRuleSet(failingProvider{}).WeightFor(context.Background(), "dnb", "name", jan)
	assert.Error(t, err)
}

type countingProvider struct {
	calls int
	rules []models.TrustRule
}

func (p *countingProvider) RulesFor(context.Context, string) ([]models.TrustRule, error) {
	p.calls++
	return p.rules, nil
}

func TestCachedProvider(t *testing.T) {
	next := &countingProvider{rules: []models.TrustRule{rule("dnb", "*", 5, epoch, nil)}}
	cached := NewCachedProvider(next, time.Minute)
	now := jan
	cached.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := cached.RulesFor(ctx, "dnb")
	require.NoError(t, err)
	_, err = cached.RulesFor(ctx, "dnb")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	now = now.Add(2 * time.Minute)
	_, err = cached.RulesFor(ctx, "dnb")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	cached.Invalidate("dnb")
	_, err = cached.RulesFor(ctx, "dnb")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)

	cached.Invalidate()
	_, err = cached.RulesFor(ctx, "dnb")
	require.NoError(t, err)
	assert.Equal(t, 4, next.calls)
}

func TestCachedProvider_Disabled(t *testing.T) {
	next := &countingProvider{}
	cached := NewCachedProvider(next, 0)
	_, _ = cached.RulesFor(context.Background(), "dnb")
	_, _ = cached.RulesFor(context.Background(), "dnb")
	assert.Equal(t, 2, next.calls)
}

func TestStaticProvider_SetReplacesSource(t *testing.T) {
	p := NewStaticProvider(rule("dnb", "*", 5, epoch, nil), rule("companies_house", "*", 5, epoch, nil))
	p.Set(rule("dnb", "*", 7, epoch, nil))

	rules, err := p.RulesFor(context.Background(), "dnb")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 7, rules[0].Weight)

	rules, err = p.RulesFor(context.Background(), "companies_house")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestParseSeed(t *testing.T) {
	rules, err := ParseSeed([]byte(`
rules:
  - source: dnb
    field: revenue_usd
    weight: 10
  - source: dnb
    field: "*"
    weight: 5
  - source: companies_house
    field: legal_name
    weight: 10
    effective_from: 2024-01-01T00:00:00Z
    effective_to: 2025-01-01T00:00:00Z
`))
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "*", rules[1].Field)
	assert.Equal(t, jan, rules[2].EffectiveFrom)
	require.NotNil(t, rules[2].EffectiveTo)

	tests := []struct {
		name string
		yaml string
	}{
		{"missing field", "rules:\n  - source: dnb\n    weight: 1\n"},
		{"negative weight", "rules:\n  - source: dnb\n    field: name\n    weight: -1\n"},
		{"unknown field", "rules:\n  - source: dnb\n    field: risk\n    weight: 1\n"},
		{"inverted window", "rules:\n  - source: dnb\n    field: name\n    weight: 1\n    effective_from: 2024-02-01T00:00:00Z\n    effective_to: 2024-01-01T00:00:00Z\n"},
		{"invalid yaml", "rules: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

type recordingWriter struct {
	rules []models.TrustRule
}

func (w *recordingWriter) Upsert(_ context.Context, rule *models.TrustRule) (*models.TrustRule, error) {
	w.rules = append(w.rules, *rule)
	return rule, nil
}

func TestSeed(t *testing.T) {
	w := &recordingWriter{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	err := Seed(context.Background(), logger, w, []models.TrustRule{
		{Source: "dnb", Field: "*", Weight: 5},
		rule("dnb", "revenue_usd", 10, jan, nil),
	})
	require.NoError(t, err)
	require.Len(t, w.rules, 2)
	assert.Equal(t, epoch, w.rules[0].EffectiveFrom)
	assert.Equal(t, jan, w.rules[1].EffectiveFrom)
}

func TestLoadSeedFile_ShippedRules(t *testing.T) {
	rules, err := LoadSeedFile("../../config/trust_rules.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	at := time.Now()
	assert.Equal(t, 10, Weight(rules, "dnb", "revenue_usd", at))
	assert.Equal(t, 5, Weight(rules, "dnb", "legal_name", at))
	assert.Equal(t, 10, Weight(rules, "companies_house", "legal_name", at))
	assert.Equal(t, 5, Weight(rules, "companies_house", "revenue_usd", at))
}
