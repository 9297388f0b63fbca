package builder

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/storage"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// PersonStore is the persistence surface of the build transaction.
type PersonStore interface {
	Get(ctx context.Context, id string) (*models.Person, error)
	GetMaybe(ctx context.Context, id string) (*models.Person, error)
	Create(ctx context.Context, p *models.Person) (*models.Person, error)
	Update(ctx context.Context, p *models.Person) error
	Delete(ctx context.Context, id string) error
	ReassignPointers(ctx context.Context, oldID, newID string) error
}

// Linker is the relationship consistency layer.
type Linker interface {
	LinkParentChild(ctx context.Context, parentID, childID string, role models.RelationType) error
	LinkSpouses(ctx context.Context, aID, bID string, status models.MaritalStatus, fromDate, toDate *time.Time, ongoing bool) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Invalidator drops cached trees whose reachable set a build touched.
type Invalidator interface {
	Invalidate(ctx context.Context, rootIDs ...string)
}

// Notifier publishes lifecycle events after a successful commit.
type Notifier interface {
	EmitPersonCreated(ctx context.Context, person *models.Person)
	EmitPersonMerged(ctx context.Context, person *models.Person, oldID string)
	EmitRelationLinked(ctx context.Context, relation models.Relation)
}

// Engine runs the multi-step build/merge mutation. Every step shares
// one transaction; any failing step aborts the whole call and leaves
// the stored graph unchanged.
type Engine struct {
	store       PersonStore
	linker      Linker
	tx          TxRunner
	invalidator Invalidator
	notifier    Notifier
	uploader    storage.Uploader
	logger      ectologger.Logger
}

func NewEngine(store PersonStore, linker Linker, tx TxRunner, invalidator Invalidator, notifier Notifier, uploader storage.Uploader, logger ectologger.Logger) *Engine {
	return &Engine{
		store:       store,
		linker:      linker,
		tx:          tx,
		invalidator: invalidator,
		notifier:    notifier,
		uploader:    uploader,
		logger:      logger,
	}
}

// buildState tracks what one build call touched, for cache
// invalidation and event emission after commit.
type buildState struct {
	self     *models.Person
	created  []*models.Person
	linked   []models.Relation
	mergedID string
	touched  map[string]bool
}

func (s *buildState) touch(ids ...string) {
	for _, id := range ids {
		s.touched[id] = true
	}
}

// Build resolves or creates self and the supplied relatives and links
// them, all inside one transaction. It returns the updated self node.
func (e *Engine) Build(ctx context.Context, authUserID string, req models.BuildRequest) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "builder.Engine.Build")
	defer span.End()

	if authUserID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "authenticated user id is required")
	}

	state := &buildState{touched: map[string]bool{}}

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.resolveSelf(ctx, authUserID, req, state); err != nil {
			return err
		}
		if err := e.linkParents(ctx, authUserID, req, state); err != nil {
			return err
		}
		if err := e.linkSpouse(ctx, authUserID, req, state); err != nil {
			return err
		}
		if err := e.linkChildren(ctx, authUserID, req, state); err != nil {
			return err
		}
		if err := e.linkSiblings(ctx, authUserID, req, state); err != nil {
			return err
		}
		return e.refreshCounts(ctx, state)
	})
	if err != nil {
		if httperror.IsHTTPError(err) {
			return nil, err
		}
		e.logger.WithContext(ctx).WithError(err).Error("Build transaction aborted")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "build transaction aborted")
	}

	e.afterCommit(ctx, state)
	return state.self, nil
}

// resolveSelf claims or creates the caller's own node. A selected id
// that differs from the caller's id triggers the identity merge: the
// placeholder's fields are cloned onto a record keyed by the caller's
// id, every pointer to the old id is rewritten, and the placeholder is
// deleted.
func (e *Engine) resolveSelf(ctx context.Context, authUserID string, req models.BuildRequest, state *buildState) error {
	switch {
	case req.Self.Selected != nil && *req.Self.Selected != authUserID:
		oldID := *req.Self.Selected
		old, err := e.store.Get(ctx, oldID)
		if err != nil {
			return err
		}

		existing, err := e.store.GetMaybe(ctx, authUserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return httperror.NewHTTPErrorf(http.StatusConflict, "person %s already exists", authUserID)
		}

		clone := *old
		clone.ID = authUserID
		clone.EditedBy = &authUserID
		if _, err := e.store.Create(ctx, &clone); err != nil {
			return err
		}
		if err := e.store.ReassignPointers(ctx, oldID, authUserID); err != nil {
			return err
		}
		if err := e.store.Delete(ctx, oldID); err != nil {
			return err
		}

		state.self = &clone
		state.mergedID = oldID
		state.touch(authUserID, oldID)
		e.logger.WithContext(ctx).WithFields(map[string]any{"old_id": oldID, "new_id": authUserID}).Info("Merged placeholder person into account owner")
		return nil

	case req.Self.Selected != nil:
		self, err := e.store.Get(ctx, authUserID)
		if err != nil {
			return err
		}
		state.self = self
		return nil

	case req.Self.Details != nil:
		self, err := e.createPerson(ctx, authUserID, req.Self.Details, authUserID)
		if err != nil {
			return err
		}
		state.self = self
		state.created = append(state.created, self)
		state.touch(self.ID)
		return nil

	default:
		self, err := e.store.GetMaybe(ctx, authUserID)
		if err != nil {
			return err
		}
		if self == nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "self is required: supply a selection or personal details")
		}
		state.self = self
		return nil
	}
}

func (e *Engine) linkParents(ctx context.Context, authUserID string, req models.BuildRequest, state *buildState) error {
	var father, mother *models.Person
	var err error

	if !req.Father.IsZero() {
		father, err = e.resolveRelative(ctx, authUserID, req.Father, state)
		if err != nil {
			return err
		}
		if err := e.link(ctx, state, father.ID, state.self.ID, models.RelationTypeFather); err != nil {
			return err
		}
	}
	if !req.Mother.IsZero() {
		mother, err = e.resolveRelative(ctx, authUserID, req.Mother, state)
		if err != nil {
			return err
		}
		if err := e.link(ctx, state, mother.ID, state.self.ID, models.RelationTypeMother); err != nil {
			return err
		}
	}

	if father != nil && mother != nil {
		if err := e.linker.LinkSpouses(ctx, father.ID, mother.ID, models.MaritalStatusMarried, nil, nil, true); err != nil {
			return err
		}
		state.linked = append(state.linked, models.Relation{FromID: father.ID, ToID: mother.ID, Type: models.RelationTypeSpouse})
		state.touch(father.ID, mother.ID)
	}
	return nil
}

func (e *Engine) linkSpouse(ctx context.Context, authUserID string, req models.BuildRequest, state *buildState) error {
	if req.Spouse.IsZero() {
		return nil
	}

	spouse, err := e.resolveRelative(ctx, authUserID, req.Spouse, state)
	if err != nil {
		return err
	}

	status := models.MaritalStatusMarried
	if req.MarriageStatus != nil {
		status = *req.MarriageStatus
	}
	ongoing := req.MarriageToDate == nil && status == models.MaritalStatusMarried

	if err := e.linker.LinkSpouses(ctx, state.self.ID, spouse.ID, status, req.MarriageFromDate, req.MarriageToDate, ongoing); err != nil {
		return err
	}
	state.linked = append(state.linked, models.Relation{FromID: state.self.ID, ToID: spouse.ID, Type: models.RelationTypeSpouse})
	state.touch(state.self.ID, spouse.ID)
	return nil
}

func (e *Engine) linkChildren(ctx context.Context, authUserID string, req models.BuildRequest, state *buildState) error {
	if len(req.Children) == 0 {
		return nil
	}

	selfRole, err := parentRole(state.self.Gender)
	if err != nil {
		return err
	}

	// the opposite-parent pointer is inferred from the spouse only when
	// the spouse's gender names the other role; a failed read aborts the
	// transaction rather than silently dropping the link
	var spouseID string
	var spouseRole models.RelationType
	if !req.Spouse.IsZero() {
		if link, ok := lastSpouseLink(state); ok {
			spouse, err := e.store.GetMaybe(ctx, link)
			if err != nil {
				return err
			}
			if spouse != nil {
				if role, roleErr := parentRole(spouse.Gender); roleErr == nil && role != selfRole {
					spouseID = spouse.ID
					spouseRole = role
				}
			}
		}
	}

	for i := range req.Children {
		child, err := e.resolveRelative(ctx, authUserID, &req.Children[i], state)
		if err != nil {
			return err
		}
		if err := e.link(ctx, state, state.self.ID, child.ID, selfRole); err != nil {
			return err
		}
		if spouseID != "" {
			if err := e.link(ctx, state, spouseID, child.ID, spouseRole); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) linkSiblings(ctx context.Context, authUserID string, req models.BuildRequest, state *buildState) error {
	if len(req.Siblings) == 0 {
		return nil
	}

	// refresh self so parent pointers set earlier in this call are seen
	self, err := e.store.Get(ctx, state.self.ID)
	if err != nil {
		return err
	}
	state.self = self

	if self.FatherID == nil && self.MotherID == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot link siblings before a parent is known")
	}

	for i := range req.Siblings {
		sibling, err := e.resolveRelative(ctx, authUserID, &req.Siblings[i], state)
		if err != nil {
			return err
		}
		if self.FatherID != nil {
			if err := e.link(ctx, state, *self.FatherID, sibling.ID, models.RelationTypeFather); err != nil {
				return err
			}
		}
		if self.MotherID != nil {
			if err := e.link(ctx, state, *self.MotherID, sibling.ID, models.RelationTypeMother); err != nil {
				return err
			}
		}
	}
	return nil
}

// refreshCounts recomputes self's children bookkeeping from the final
// children set.
func (e *Engine) refreshCounts(ctx context.Context, state *buildState) error {
	self, err := e.store.Get(ctx, state.self.ID)
	if err != nil {
		return err
	}

	count := len(self.Children)
	if self.ChildrenCount != count || self.HaveKids != (count > 0) {
		self.ChildrenCount = count
		self.HaveKids = count > 0
		if err := e.store.Update(ctx, self); err != nil {
			return err
		}
	}

	state.self = self
	state.touch(self.ID)
	return nil
}

// resolveRelative turns one RelativeInput into a concrete person: a
// selected id must exist, inline details create a new node.
func (e *Engine) resolveRelative(ctx context.Context, creatorID string, input *models.RelativeInput, state *buildState) (*models.Person, error) {
	switch {
	case input.Selected != nil:
		return e.store.Get(ctx, *input.Selected)
	case input.Details != nil:
		p, err := e.createPerson(ctx, "", input.Details, creatorID)
		if err != nil {
			return nil, err
		}
		state.created = append(state.created, p)
		state.touch(p.ID)
		return p, nil
	default:
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "relative requires a selection or details")
	}
}

func (e *Engine) createPerson(ctx context.Context, id string, details *models.CreatePersonRequest, creatorID string) (*models.Person, error) {
	profileImage := details.ProfileImage
	if profileImage != nil && storage.IsInlineImage(*profileImage) {
		if e.uploader == nil {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "inline images are not supported")
		}
		data, err := storage.DecodeInlineImage(*profileImage)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "malformed inline image")
		}
		result, err := e.uploader.Upload(ctx, data, uuid.New().String())
		if err != nil {
			return nil, err
		}
		profileImage = &result.URL
	}

	p := &models.Person{
		ID:               id,
		FirstName:        details.FirstName,
		LastName:         details.LastName,
		Gender:           details.Gender,
		Living:           details.Living,
		BirthDate:        details.BirthDate,
		DeathDate:        details.DeathDate,
		BirthCity:        details.BirthCity,
		BirthState:       details.BirthState,
		BirthCountry:     details.BirthCountry,
		BirthPin:         details.BirthPin,
		ResidenceCity:    details.ResidenceCity,
		ResidenceState:   details.ResidenceState,
		ResidenceCountry: details.ResidenceCountry,
		ResidencePin:     details.ResidencePin,
		Occupation:       details.Occupation,
		ProfileImage:     profileImage,
		CreatorID:        creatorID,
	}
	if p.Living && p.DeathDate != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "a living person cannot have a death date")
	}
	return e.store.Create(ctx, p)
}

func (e *Engine) link(ctx context.Context, state *buildState, parentID, childID string, role models.RelationType) error {
	if err := e.linker.LinkParentChild(ctx, parentID, childID, role); err != nil {
		return err
	}
	state.linked = append(state.linked, models.Relation{FromID: childID, ToID: parentID, Type: role})
	state.touch(parentID, childID)
	return nil
}

// afterCommit performs the side effects that must not run inside the
// transaction: cache invalidation and event emission.
func (e *Engine) afterCommit(ctx context.Context, state *buildState) {
	if e.invalidator != nil {
		roots := make([]string, 0, len(state.touched))
		for id := range state.touched {
			roots = append(roots, id)
		}
		e.invalidator.Invalidate(ctx, roots...)
	}

	if e.notifier == nil {
		return
	}
	for _, p := range state.created {
		e.notifier.EmitPersonCreated(ctx, p)
	}
	if state.mergedID != "" {
		e.notifier.EmitPersonMerged(ctx, state.self, state.mergedID)
	}
	for _, rel := range state.linked {
		e.notifier.EmitRelationLinked(ctx, rel)
	}
}

func parentRole(gender models.Gender) (models.RelationType, error) {
	switch gender {
	case models.GenderMale:
		return models.RelationTypeFather, nil
	case models.GenderFemale:
		return models.RelationTypeMother, nil
	default:
		return "", httperror.NewHTTPError(http.StatusBadRequest, "cannot infer a parent role for this gender; link the child explicitly")
	}
}

func lastSpouseLink(state *buildState) (string, bool) {
	for i := len(state.linked) - 1; i >= 0; i-- {
		rel := state.linked[i]
		if rel.Type == models.RelationTypeSpouse && rel.FromID == state.self.ID {
			return rel.ToID, true
		}
	}
	return "", false
}
