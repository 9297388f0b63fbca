package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

// Mirror keeps a secondary graph projection of the family graph in sync.
type Mirror interface {
	UpsertPerson(ctx context.Context, person *models.Person) error
	LinkRelation(ctx context.Context, rel models.Relation) error
	ReplacePerson(ctx context.Context, oldID, newID string) error
	RemovePerson(ctx context.Context, id string) error
}

// Notifier fans lifecycle changes out to the event stream and, when
// configured, the graph mirror. Both targets are best-effort: the
// relational store is the source of truth and failures here are logged,
// never surfaced to the caller.
type Notifier struct {
	emitter *Emitter
	mirror  Mirror
	logger  ectologger.Logger
}

func NewNotifier(emitter *Emitter, mirror Mirror, logger ectologger.Logger) *Notifier {
	return &Notifier{
		emitter: emitter,
		mirror:  mirror,
		logger:  logger,
	}
}

func (n *Notifier) EmitPersonCreated(ctx context.Context, person *models.Person) {
	n.emitter.EmitPersonCreated(ctx, person)

	if n.mirror != nil {
		if err := n.mirror.UpsertPerson(ctx, person); err != nil {
			n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"person_id": person.ID,
			}).Error("Failed to mirror person upsert")
		}
	}
}

func (n *Notifier) EmitPersonUpdated(ctx context.Context, person *models.Person) {
	n.emitter.EmitPersonUpdated(ctx, person)

	if n.mirror != nil {
		if err := n.mirror.UpsertPerson(ctx, person); err != nil {
			n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"person_id": person.ID,
			}).Error("Failed to mirror person upsert")
		}
	}
}

func (n *Notifier) EmitPersonMerged(ctx context.Context, person *models.Person, oldID string) {
	n.emitter.EmitPersonMerged(ctx, person, oldID)

	if n.mirror != nil {
		if err := n.mirror.UpsertPerson(ctx, person); err != nil {
			n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"person_id": person.ID,
			}).Error("Failed to mirror person upsert")
		}
		if err := n.mirror.ReplacePerson(ctx, oldID, person.ID); err != nil {
			n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"person_id": person.ID,
				"old_id":    oldID,
			}).Error("Failed to mirror person merge")
		}
	}
}

func (n *Notifier) EmitPersonDeleted(ctx context.Context, person *models.Person) {
	n.emitter.EmitPersonDeleted(ctx, person)

	if n.mirror != nil {
		if err := n.mirror.RemovePerson(ctx, person.ID); err != nil {
			n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"person_id": person.ID,
			}).Error("Failed to mirror person removal")
		}
	}
}

func (n *Notifier) EmitRelationLinked(ctx context.Context, relation models.Relation) {
	n.emitter.EmitRelationLinked(ctx, relation)

	if n.mirror != nil {
		if err := n.mirror.LinkRelation(ctx, relation); err != nil {
			n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"from_id": relation.FromID,
				"to_id":   relation.ToID,
			}).Error("Failed to mirror relation link")
		}
	}
}
