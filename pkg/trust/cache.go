package trust

import (
	"context"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

type cacheEntry struct {
	rules     []models.TrustRule
	expiresAt time.Time
}

// CachedProvider caches another provider's rules per source for a fixed TTL.
// Rule changes made through Invalidate are visible immediately; changes made
// elsewhere are visible after at most one TTL.
type CachedProvider struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (p *CachedProvider) RulesFor(ctx context.Context, source string) ([]models.TrustRule, error) {
	if p.ttl <= 0 {
		return p.next.RulesFor(ctx, source)
	}

	p.mu.Lock()
	entry, ok := p.entries[source]
	p.mu.Unlock()
	if ok && p.now().Before(entry.expiresAt) {
		metrics.TrustRuleCacheLookups.WithLabelValues("hit").Inc()
		return entry.rules, nil
	}
	metrics.TrustRuleCacheLookups.WithLabelValues("miss").Inc()

	rules, err := p.next.RulesFor(ctx, source)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[source] = cacheEntry{rules: rules, expiresAt: p.now().Add(p.ttl)}
	p.mu.Unlock()
	return rules, nil
}

// Invalidate drops the cached rules for source, or for every source when none is given
func (p *CachedProvider) Invalidate(sources ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(sources) == 0 {
		p.entries = make(map[string]cacheEntry)
		return
	}
	for _, source := range sources {
		delete(p.entries, source)
	}
}
