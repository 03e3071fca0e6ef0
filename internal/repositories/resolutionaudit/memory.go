package resolutionaudit

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps audits in process, newest last
type MemoryRepository struct {
	mu     sync.RWMutex
	audits []models.ResolutionAudit
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Record(_ context.Context, audit *models.ResolutionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	stored := *audit
	stored.ChangedFields = append([]models.Field(nil), audit.ChangedFields...)
	stored.Conflicts = append([]models.FieldConflict(nil), audit.Conflicts...)
	r.audits = append(r.audits, stored)
	return nil
}

func (r *MemoryRepository) ListByEntity(_ context.Context, resolvedEntityID string, limit int) ([]*models.ResolutionAudit, error) {
	return r.newest(limit, func(a models.ResolutionAudit) bool {
		return a.ResolvedEntityID == resolvedEntityID
	}), nil
}

func (r *MemoryRepository) ListConflicts(_ context.Context, limit int) ([]*models.ResolutionAudit, error) {
	return r.newest(limit, func(a models.ResolutionAudit) bool {
		return len(a.Conflicts) > 0
	}), nil
}

func (r *MemoryRepository) newest(limit int, keep func(models.ResolutionAudit) bool) []*models.ResolutionAudit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ResolutionAudit
	for i := len(r.audits) - 1; i >= 0; i-- {
		if keep(r.audits[i]) {
			a := r.audits[i]
			out = append(out, &a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if l := limitOrDefault(limit); len(out) > l {
		out = out[:l]
	}
	return out
}
