package trust

import (
	"context"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// StaticProvider serves a fixed rule list held in memory
type StaticProvider struct {
	mu    sync.RWMutex
	rules map[string][]models.TrustRule
}

func NewStaticProvider(rules ...models.TrustRule) *StaticProvider {
	p := &StaticProvider{rules: make(map[string][]models.TrustRule)}
	p.Set(rules...)
	return p
}

// Set replaces the rules for every source named in rules
func (p *StaticProvider) Set(rules ...models.TrustRule) {
	grouped := make(map[string][]models.TrustRule)
	for _, rule := range rules {
		grouped[rule.Source] = append(grouped[rule.Source], rule)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for source, sourceRules := range grouped {
		p.rules[source] = sourceRules
	}
}

func (p *StaticProvider) RulesFor(_ context.Context, source string) ([]models.TrustRule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rules := make([]models.TrustRule, len(p.rules[source]))
	copy(rules, p.rules[source])
	return rules, nil
}
