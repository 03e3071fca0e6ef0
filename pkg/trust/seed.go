package trust

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk trust configuration
type SeedFile struct {
	Rules []models.TrustRule `yaml:"rules"`
}

// ParseSeed decodes and validates a YAML trust configuration
func ParseSeed(data []byte) ([]models.TrustRule, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse trust rules: %w", err)
	}
	for i, rule := range file.Rules {
		if rule.Source == "" || rule.Field == "" {
			return nil, fmt.Errorf("trust rule %d: source and field are required", i)
		}
		if rule.Weight < 0 {
			return nil, fmt.Errorf("trust rule %d: weight must not be negative", i)
		}
		if rule.Field != models.WildcardField && !models.IsMergeable(rule.Field) {
			return nil, fmt.Errorf("trust rule %d: unknown field %q", i, rule.Field)
		}
		if rule.EffectiveTo != nil && rule.EffectiveTo.Before(rule.EffectiveFrom) {
			return nil, fmt.Errorf("trust rule %d: effective_to is before effective_from", i)
		}
	}
	return file.Rules, nil
}

// LoadSeedFile reads and parses a YAML trust configuration file
func LoadSeedFile(path string) ([]models.TrustRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// RuleWriter stores trust rules
type RuleWriter interface {
	Upsert(ctx context.Context, rule *models.TrustRule) (*models.TrustRule, error)
}

// Seed upserts rules into the writer. Existing rules with the same
// (source, field, effective_from) are replaced. A missing effective_from
// becomes the Unix epoch.
func Seed(ctx context.Context, logger ectologger.Logger, writer RuleWriter, rules []models.TrustRule) error {
	for i := range rules {
		rule := rules[i]
		if rule.EffectiveFrom.IsZero() {
			rule.EffectiveFrom = time.Unix(0, 0).UTC()
		}
		if _, err := writer.Upsert(ctx, &rule); err != nil {
			return fmt.Errorf("seed trust rule %s/%s: %w", rule.Source, rule.Field, err)
		}
	}
	logger.WithContext(ctx).WithField("count", len(rules)).Info("Seeded trust rules")
	return nil
}
