// Package events handles event emission for person lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/kafka"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes person and relation lifecycle events. Emission is
// best-effort after commit; downstream consumers (graph mirror, feeds)
// reconcile from the store when a message is lost.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitPersonCreated emits a person.created event.
func (e *Emitter) EmitPersonCreated(ctx context.Context, person *models.Person) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPersonCreated")
	defer span.End()

	data, _ := json.Marshal(person)
	event := &kafka.PersonEvent{
		EventType: "person.created",
		PersonID:  person.ID,
		Data:      data,
	}

	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit person.created event")
	}
}

// EmitPersonUpdated emits a person.updated event.
func (e *Emitter) EmitPersonUpdated(ctx context.Context, person *models.Person) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPersonUpdated")
	defer span.End()

	data, _ := json.Marshal(person)
	event := &kafka.PersonEvent{
		EventType: "person.updated",
		PersonID:  person.ID,
		Data:      data,
	}

	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit person.updated event")
	}
}

// EmitPersonMerged emits a person.merged event after an identity merge
// rewrote every pointer from oldID to the surviving person.
func (e *Emitter) EmitPersonMerged(ctx context.Context, person *models.Person, oldID string) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPersonMerged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"merged_from":    oldID,
	})
	event := &kafka.PersonEvent{
		EventType:  "person.merged",
		PersonID:   person.ID,
		Data:       data,
		MergedFrom: oldID,
	}

	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit person.merged event")
	}
}

// EmitPersonDeleted emits a person.deleted event.
func (e *Emitter) EmitPersonDeleted(ctx context.Context, person *models.Person) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPersonDeleted")
	defer span.End()

	data, _ := json.Marshal(person)
	event := &kafka.PersonEvent{
		EventType: "person.deleted",
		PersonID:  person.ID,
		Data:      data,
	}

	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit person.deleted event")
	}
}

// EmitRelationLinked emits a relation.linked event for a new edge.
func (e *Emitter) EmitRelationLinked(ctx context.Context, relation models.Relation) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRelationLinked")
	defer span.End()

	event := &kafka.RelationEvent{
		EventType:    "relation.linked",
		RelationType: string(relation.Type),
		FromPersonID: relation.FromID,
		ToPersonID:   relation.ToID,
	}

	if err := e.producer.PublishRelationEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit relation.linked event")
	}
}
