package trustrule

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps trust rules in process with the same upsert key as Repository
type MemoryRepository struct {
	mu    sync.RWMutex
	rules map[string]models.TrustRule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rules: make(map[string]models.TrustRule)}
}

func (r *MemoryRepository) RulesFor(_ context.Context, source string) ([]models.TrustRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(source), nil
}

func (r *MemoryRepository) List(_ context.Context, source string) ([]models.TrustRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(source), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, rule *models.TrustRule) (*models.TrustRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.rules {
		if existing.Source == rule.Source && existing.Field == rule.Field && existing.EffectiveFrom.Equal(rule.EffectiveFrom) {
			existing.Weight = rule.Weight
			existing.EffectiveTo = rule.EffectiveTo
			r.rules[id] = existing
			return &existing, nil
		}
	}

	stored := *rule
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	r.rules[stored.ID] = stored
	return &stored, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return errors.NewNotFoundError("trust rule", id)
	}
	delete(r.rules, id)
	return nil
}

func (r *MemoryRepository) filter(source string) []models.TrustRule {
	var rules []models.TrustRule
	for _, rule := range r.rules {
		if source == "" || rule.Source == source {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Source != rules[j].Source {
			return rules[i].Source < rules[j].Source
		}
		if rules[i].Field != rules[j].Field {
			return rules[i].Field < rules[j].Field
		}
		return rules[i].EffectiveFrom.Before(rules[j].EffectiveFrom)
	})
	return rules
}
