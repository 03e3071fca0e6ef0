// Package events emits golden record lifecycle events
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Event types
const (
	EventEntityCreated  = "entity.created"
	EventEntityUpdated  = "entity.updated"
	EventEntityConflict = "entity.conflict"
)

// Publisher publishes entity events
type Publisher interface {
	PublishEntityEvent(ctx context.Context, event *kafka.EntityEvent) error
}

// Emitter turns golden record updates into events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) Name() string {
	return "events"
}

// Project emits entity.created or entity.updated for a changed record and
// entity.conflict when equal-weight conflicts were left for review.
func (e *Emitter) Project(ctx context.Context, update models.GoldenRecordUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Project")
	defer span.End()

	if update.Changed() {
		eventType := EventEntityUpdated
		if update.IsNew {
			eventType = EventEntityCreated
		}
		if err := e.emit(ctx, eventType, update, update.Entity); err != nil {
			return err
		}
	}

	if len(update.Conflicts) > 0 {
		if err := e.emit(ctx, EventEntityConflict, update, update.Conflicts); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emit(ctx context.Context, eventType string, update models.GoldenRecordUpdate, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	changed := make([]string, len(update.ChangedFields))
	for i, f := range update.ChangedFields {
		changed[i] = string(f)
	}

	event := &kafka.EntityEvent{
		EventType:     eventType,
		EntityID:      update.Entity.ID,
		Source:        update.Source,
		PayloadID:     update.PayloadID,
		ChangedFields: changed,
		Data:          body,
		Version:       update.Entity.Version,
	}

	if err := e.publisher.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
