package canonicalentity

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process append-only canonical entity store
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]models.CanonicalEntity
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]models.CanonicalEntity)}
}

func (r *MemoryRepository) Create(_ context.Context, entity *models.CanonicalEntity) (*models.CanonicalEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	r.byID[entity.ID] = *entity
	return entity, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.CanonicalEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.byID[id]
	if !ok {
		return nil, errors.NewNotFoundError("canonical entity", id)
	}
	return &entity, nil
}

func (r *MemoryRepository) ListByPayload(_ context.Context, payloadID string) ([]*models.CanonicalEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entities []*models.CanonicalEntity
	for _, entity := range r.byID {
		if entity.PayloadID == payloadID {
			e := entity
			entities = append(entities, &e)
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ValidFrom.After(entities[j].ValidFrom)
	})
	return entities, nil
}
