package resolvedentity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps golden records in process. It enforces the same
// version check and registration number uniqueness as Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.ResolvedEntity
	links map[string]models.EntityLink
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*models.ResolvedEntity),
		links: make(map[string]models.EntityLink),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for created_at, updated_at and linked_at
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.now = now
	return r
}

func (r *MemoryRepository) Create(_ context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := entity.Clone()
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Lineage == nil {
		created.Lineage = models.Lineage{}
	}
	if r.claimedByOther(created) {
		return nil, errors.NewConflictError("", 0, "registration number already claimed by another golden record")
	}
	now := r.now()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now

	r.byID[created.ID] = created.Clone()
	return created, nil
}

func (r *MemoryRepository) Update(_ context.Context, entity *models.ResolvedEntity) (*models.ResolvedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[entity.ID]
	if !ok || stored.Version != entity.Version {
		return nil, errors.NewConflictError(entity.ID, entity.Version, "version changed")
	}
	if r.claimedByOther(entity) {
		return nil, errors.NewConflictError(entity.ID, entity.Version, "registration number already claimed by another golden record")
	}

	updated := entity.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = r.now()
	updated.Version = entity.Version + 1
	r.byID[updated.ID] = updated.Clone()
	return updated, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.ResolvedEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.byID[id]
	if !ok {
		return nil, errors.NewNotFoundError("resolved entity", id)
	}
	return entity.Clone(), nil
}

func (r *MemoryRepository) FindByRegistrationNumber(_ context.Context, registrationNumber string) (*models.ResolvedEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entity := range r.byID {
		if entity.RegistrationNumber != nil && *entity.RegistrationNumber == registrationNumber {
			return entity.Clone(), nil
		}
	}
	return nil, errors.NewNotFoundError("resolved entity", registrationNumber)
}

func (r *MemoryRepository) FindByPayloadID(_ context.Context, payloadID string) (*models.ResolvedEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.links[payloadID]
	if !ok {
		return nil, errors.NewNotFoundError("resolved entity", payloadID)
	}
	entity, ok := r.byID[link.ResolvedEntityID]
	if !ok {
		return nil, errors.NewNotFoundError("resolved entity", payloadID)
	}
	return entity.Clone(), nil
}

func (r *MemoryRepository) Link(_ context.Context, link *models.EntityLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *link
	if stored.LinkedAt.IsZero() {
		stored.LinkedAt = r.now()
	}
	r.links[stored.PayloadID] = stored
	return nil
}

func (r *MemoryRepository) ListLinks(_ context.Context, resolvedEntityID string) ([]models.EntityLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var links []models.EntityLink
	for _, link := range r.links {
		if link.ResolvedEntityID == resolvedEntityID {
			links = append(links, link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].LinkedAt.Before(links[j].LinkedAt)
	})
	return links, nil
}

// claimedByOther reports whether another record already holds entity's registration number
func (r *MemoryRepository) claimedByOther(entity *models.ResolvedEntity) bool {
	if entity.RegistrationNumber == nil {
		return false
	}
	for id, other := range r.byID {
		if id != entity.ID && other.RegistrationNumber != nil && *other.RegistrationNumber == *entity.RegistrationNumber {
			return true
		}
	}
	return false
}
