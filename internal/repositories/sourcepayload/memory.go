package sourcepayload

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process source payload store with the same
// upsert semantics as Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.SourcePayload
	byKey map[string]string
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*models.SourcePayload),
		byKey: make(map[string]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for ingested_at
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.now = now
	return r
}

func key(source, sourceID string) string {
	return source + "\x00" + sourceID
}

func (r *MemoryRepository) Upsert(_ context.Context, source, sourceID string, payload json.RawMessage, fingerprint string) (*models.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := make(json.RawMessage, len(payload))
	copy(doc, payload)

	if id, ok := r.byKey[key(source, sourceID)]; ok {
		existing := r.byID[id]
		previous := existing.Fingerprint
		existing.Payload = doc
		existing.Fingerprint = fingerprint
		existing.IngestedAt = r.now()
		copied := *existing
		return &models.IngestResult{
			Payload:   &copied,
			Unchanged: fingerprint != "" && previous == fingerprint,
		}, nil
	}

	stored := &models.SourcePayload{
		ID:          uuid.New().String(),
		Source:      source,
		SourceID:    sourceID,
		Payload:     doc,
		Fingerprint: fingerprint,
		IngestedAt:  r.now(),
	}
	r.byID[stored.ID] = stored
	r.byKey[key(source, sourceID)] = stored.ID
	copied := *stored
	return &models.IngestResult{Payload: &copied, IsNew: true}, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.SourcePayload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, errors.NewNotFoundError("source payload", id)
	}
	copied := *p
	return &copied, nil
}

func (r *MemoryRepository) GetBySourceID(ctx context.Context, source, sourceID string) (*models.SourcePayload, error) {
	r.mu.RLock()
	id, ok := r.byKey[key(source, sourceID)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("source payload", source+"/"+sourceID)
	}
	return r.Get(ctx, id)
}
