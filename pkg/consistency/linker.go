package consistency

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// PersonStore is the persistence surface the linker needs. The person
// repository satisfies it; tests swap in an in-memory store.
type PersonStore interface {
	Get(ctx context.Context, id string) (*models.Person, error)
	Update(ctx context.Context, p *models.Person) error
}

// Linker keeps every relationship edge mirrored on both persons. Both
// sides of a link are written inside the caller's transaction, so a
// failure on either side rolls back the pair.
type Linker struct {
	store  PersonStore
	logger ectologger.Logger
}

func NewLinker(store PersonStore, logger ectologger.Logger) *Linker {
	return &Linker{
		store:  store,
		logger: logger,
	}
}

// LinkParentChild sets the child's father or mother pointer and adds
// the child to the parent's children set. Idempotent when the link is
// already correct; conflicts when the child already has a different
// parent in that role.
func (l *Linker) LinkParentChild(ctx context.Context, parentID, childID string, role models.RelationType) error {
	ctx, span := tracing.StartSpan(ctx, "consistency.Linker.LinkParentChild")
	defer span.End()

	if role != models.RelationTypeFather && role != models.RelationTypeMother {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid parent role %q", role)
	}
	if parentID == childID {
		return httperror.NewHTTPError(http.StatusBadRequest, "a person cannot be their own parent")
	}

	parent, err := l.store.Get(ctx, parentID)
	if err != nil {
		return err
	}
	child, err := l.store.Get(ctx, childID)
	if err != nil {
		return err
	}

	current := child.FatherID
	if role == models.RelationTypeMother {
		current = child.MotherID
	}

	childDirty := false
	switch {
	case current == nil:
		if role == models.RelationTypeFather {
			child.FatherID = &parentID
		} else {
			child.MotherID = &parentID
		}
		childDirty = true
	case *current == parentID:
		// pointer already correct
	default:
		return httperror.NewHTTPErrorf(http.StatusConflict, "person %s already has a %s", childID, role)
	}

	parentDirty := false
	if !parent.HasChild(childID) {
		parent.Children = append(parent.Children, childID)
		parentDirty = true
	}
	if count := len(parent.Children); parent.ChildrenCount != count || !parent.HaveKids {
		parent.ChildrenCount = count
		parent.HaveKids = count > 0
		parentDirty = true
	}

	if childDirty {
		if err := l.store.Update(ctx, child); err != nil {
			return err
		}
	}
	if parentDirty {
		if err := l.store.Update(ctx, parent); err != nil {
			return err
		}
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{"parent_id": parentID, "child_id": childID, "role": role}).Debug("Linked parent and child")
	return nil
}

// LinkSpouses appends the relationship on both spouse lists unless an
// entry for the counterpart already exists. A one-sided link is
// repaired by writing the missing mirror.
func (l *Linker) LinkSpouses(ctx context.Context, aID, bID string, status models.MaritalStatus, fromDate, toDate *time.Time, ongoing bool) error {
	ctx, span := tracing.StartSpan(ctx, "consistency.Linker.LinkSpouses")
	defer span.End()

	if aID == bID {
		return httperror.NewHTTPError(http.StatusBadRequest, "a person cannot be their own spouse")
	}
	if status == "" {
		status = models.MaritalStatusMarried
	}
	if toDate == nil && status == models.MaritalStatusMarried {
		ongoing = true
	}

	a, err := l.store.Get(ctx, aID)
	if err != nil {
		return err
	}
	b, err := l.store.Get(ctx, bID)
	if err != nil {
		return err
	}

	if _, ok := a.SpouseOf(bID); !ok {
		a.Spouses.Data = append(a.Spouses.Data, models.SpouseLink{
			SpouseID: bID,
			Status:   status,
			FromDate: fromDate,
			ToDate:   toDate,
			Ongoing:  ongoing,
		})
		if err := l.store.Update(ctx, a); err != nil {
			return err
		}
	}

	if _, ok := b.SpouseOf(aID); !ok {
		b.Spouses.Data = append(b.Spouses.Data, models.SpouseLink{
			SpouseID: aID,
			Status:   status,
			FromDate: fromDate,
			ToDate:   toDate,
			Ongoing:  ongoing,
		})
		if err := l.store.Update(ctx, b); err != nil {
			return err
		}
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{"a_id": aID, "b_id": bID, "status": status}).Debug("Linked spouses")
	return nil
}
