package builder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/consistency"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

type memStore struct {
	people    map[string]*models.Person
	serial    int
	failReads map[string]error
}

func newMemStore(people ...*models.Person) *memStore {
	s := &memStore{people: map[string]*models.Person{}}
	for _, p := range people {
		s.people[p.ID] = p
	}
	return s
}

func (s *memStore) snapshot() map[string]*models.Person {
	snap := map[string]*models.Person{}
	for id, p := range s.people {
		clone := *p
		snap[id] = &clone
	}
	return snap
}

func (s *memStore) Get(_ context.Context, id string) (*models.Person, error) {
	p, ok := s.people[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", id)
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) GetMaybe(_ context.Context, id string) (*models.Person, error) {
	if err, ok := s.failReads[id]; ok {
		return nil, err
	}
	p, ok := s.people[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) Create(_ context.Context, p *models.Person) (*models.Person, error) {
	if p.ID == "" {
		s.serial++
		p.ID = fmt.Sprintf("gen-%d", s.serial)
	}
	if _, exists := s.people[p.ID]; exists {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "person %s already exists", p.ID)
	}
	clone := *p
	s.people[p.ID] = &clone
	return p, nil
}

func (s *memStore) Update(_ context.Context, p *models.Person) error {
	if _, ok := s.people[p.ID]; !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", p.ID)
	}
	clone := *p
	s.people[p.ID] = &clone
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.people, id)
	return nil
}

func (s *memStore) ReassignPointers(_ context.Context, oldID, newID string) error {
	for _, p := range s.people {
		if p.FatherID != nil && *p.FatherID == oldID {
			p.FatherID = &newID
		}
		if p.MotherID != nil && *p.MotherID == oldID {
			p.MotherID = &newID
		}
		for i, child := range p.Children {
			if child == oldID {
				p.Children[i] = newID
			}
		}
		for i, link := range p.Spouses.Data {
			if link.SpouseID == oldID {
				p.Spouses.Data[i].SpouseID = newID
			}
		}
	}
	return nil
}

// snapshotTx mimics transactional rollback by restoring the store when
// the callback fails.
type snapshotTx struct {
	store *memStore
}

func (t snapshotTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.people = snap
		return err
	}
	return nil
}

type recordingNotifier struct {
	created   []string
	merged    [][2]string
	relations []models.Relation
}

func (n *recordingNotifier) EmitPersonCreated(_ context.Context, person *models.Person) {
	n.created = append(n.created, person.ID)
}

func (n *recordingNotifier) EmitPersonMerged(_ context.Context, person *models.Person, oldID string) {
	n.merged = append(n.merged, [2]string{oldID, person.ID})
}

func (n *recordingNotifier) EmitRelationLinked(_ context.Context, relation models.Relation) {
	n.relations = append(n.relations, relation)
}

type recordingInvalidator struct {
	roots []string
}

func (i *recordingInvalidator) Invalidate(_ context.Context, rootIDs ...string) {
	i.roots = append(i.roots, rootIDs...)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(store *memStore) (*Engine, *recordingNotifier, *recordingInvalidator) {
	logger := testLogger()
	notifier := &recordingNotifier{}
	invalidator := &recordingInvalidator{}
	engine := NewEngine(store, consistency.NewLinker(store, logger), snapshotTx{store}, invalidator, notifier, nil, logger)
	return engine, notifier, invalidator
}

func strptr(s string) *string { return &s }

func details(first string, gender models.Gender) *models.CreatePersonRequest {
	return &models.CreatePersonRequest{
		FirstName: first,
		LastName:  "Doe",
		Gender:    gender,
		Living:    true,
	}
}

func TestBuild_CreatesSelfAndParents(t *testing.T) {
	store := newMemStore()
	engine, notifier, invalidator := newTestEngine(store)

	self, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self:   models.RelativeInput{Details: details("John", models.GenderMale)},
		Father: &models.RelativeInput{Details: details("Robert", models.GenderMale)},
		Mother: &models.RelativeInput{Details: details("Mary", models.GenderFemale)},
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", self.ID)
	require.NotNil(t, self.FatherID)
	require.NotNil(t, self.MotherID)

	father := store.people[*self.FatherID]
	mother := store.people[*self.MotherID]
	assert.True(t, father.HasChild("u1"))
	assert.True(t, mother.HasChild("u1"))
	assert.Equal(t, "u1", father.CreatorID)

	// parents are linked as spouses on both sides
	_, ok := father.SpouseOf(mother.ID)
	assert.True(t, ok)
	_, ok = mother.SpouseOf(father.ID)
	assert.True(t, ok)

	assert.Len(t, notifier.created, 3)
	assert.NotEmpty(t, invalidator.roots)
}

func TestBuild_SpouseAndChildrenGetBothParents(t *testing.T) {
	store := newMemStore()
	engine, _, _ := newTestEngine(store)

	self, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self:   models.RelativeInput{Details: details("John", models.GenderMale)},
		Spouse: &models.RelativeInput{Details: details("Jane", models.GenderFemale)},
		Children: []models.RelativeInput{
			{Details: details("Alice", models.GenderFemale)},
			{Details: details("Bob", models.GenderMale)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, self.ChildrenCount)
	assert.True(t, self.HaveKids)

	link, ok := self.SpouseOf(self.Spouses.Data[0].SpouseID)
	require.True(t, ok)
	spouse := store.people[link.SpouseID]

	for _, childID := range self.Children {
		child := store.people[childID]
		require.NotNil(t, child.FatherID)
		require.NotNil(t, child.MotherID)
		assert.Equal(t, "u1", *child.FatherID)
		assert.Equal(t, spouse.ID, *child.MotherID)
	}
	assert.Equal(t, 2, spouse.ChildrenCount)
}

func TestBuild_SiblingsShareParents(t *testing.T) {
	store := newMemStore()
	engine, _, _ := newTestEngine(store)

	self, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self:     models.RelativeInput{Details: details("John", models.GenderMale)},
		Father:   &models.RelativeInput{Details: details("Robert", models.GenderMale)},
		Mother:   &models.RelativeInput{Details: details("Mary", models.GenderFemale)},
		Siblings: []models.RelativeInput{{Details: details("Tom", models.GenderMale)}},
	})
	require.NoError(t, err)

	father := store.people[*self.FatherID]
	require.Len(t, father.Children, 2)

	var siblingID string
	for _, id := range father.Children {
		if id != "u1" {
			siblingID = id
		}
	}
	sibling := store.people[siblingID]
	assert.Equal(t, *self.FatherID, *sibling.FatherID)
	assert.Equal(t, *self.MotherID, *sibling.MotherID)
}

func TestBuild_SiblingsWithoutParentsFail(t *testing.T) {
	store := newMemStore()
	engine, _, _ := newTestEngine(store)

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self:     models.RelativeInput{Details: details("John", models.GenderMale)},
		Siblings: []models.RelativeInput{{Details: details("Tom", models.GenderMale)}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestBuild_IdentityMergeRewritesPointers(t *testing.T) {
	placeholder := &models.Person{
		ID:        "ph1",
		FirstName: "John",
		LastName:  "Doe",
		Gender:    models.GenderMale,
		FatherID:  strptr("f1"),
		CreatorID: "u2",
	}
	father := &models.Person{
		ID:            "f1",
		FirstName:     "Robert",
		LastName:      "Doe",
		Gender:        models.GenderMale,
		Children:      []string{"ph1"},
		ChildrenCount: 1,
		HaveKids:      true,
		CreatorID:     "u2",
	}
	store := newMemStore(placeholder, father)
	engine, notifier, _ := newTestEngine(store)

	self, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self: models.RelativeInput{Selected: strptr("ph1")},
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", self.ID)
	assert.Equal(t, "John", self.FirstName)

	_, exists := store.people["ph1"]
	assert.False(t, exists, "placeholder must be deleted")

	f := store.people["f1"]
	assert.True(t, f.HasChild("u1"))
	assert.False(t, f.HasChild("ph1"))

	require.Len(t, notifier.merged, 1)
	assert.Equal(t, [2]string{"ph1", "u1"}, notifier.merged[0])
}

func TestBuild_MergeConflictsWhenOwnRecordExists(t *testing.T) {
	store := newMemStore(
		&models.Person{ID: "u1", FirstName: "John", CreatorID: "u1"},
		&models.Person{ID: "ph1", FirstName: "Johnny", CreatorID: "u2"},
	)
	engine, _, _ := newTestEngine(store)

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self: models.RelativeInput{Selected: strptr("ph1")},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// nothing was merged
	_, exists := store.people["ph1"]
	assert.True(t, exists)
}

func TestBuild_FailingStepRollsEverythingBack(t *testing.T) {
	store := newMemStore()
	engine, notifier, _ := newTestEngine(store)

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self: models.RelativeInput{Details: details("John", models.GenderMale)},
		Children: []models.RelativeInput{
			{Details: details("Alice", models.GenderFemale)},
			{}, // neither selection nor details
		},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	assert.Empty(t, store.people, "aborted build must leave the store unchanged")
	assert.Empty(t, notifier.created, "no events after a rollback")
}

func TestBuild_SpouseReadFailureAbortsBuild(t *testing.T) {
	store := newMemStore()
	engine, notifier, _ := newTestEngine(store)

	// the spouse is the second node created in this build
	store.failReads = map[string]error{"gen-1": errors.New("connection reset by peer")}

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self:     models.RelativeInput{Details: details("John", models.GenderMale)},
		Spouse:   &models.RelativeInput{Details: details("Jane", models.GenderFemale)},
		Children: []models.RelativeInput{{Details: details("Alice", models.GenderFemale)}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))

	assert.Empty(t, store.people, "a failed read inside the transaction must roll everything back")
	assert.Empty(t, notifier.created)
}

func TestBuild_ChildrenRequireInferableParentRole(t *testing.T) {
	store := newMemStore()
	engine, _, _ := newTestEngine(store)

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self:     models.RelativeInput{Details: details("Sam", models.GenderOther)},
		Children: []models.RelativeInput{{Details: details("Alice", models.GenderFemale)}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Empty(t, store.people)
}

func TestBuild_NoSelfAndNoRecordFails(t *testing.T) {
	store := newMemStore()
	engine, _, _ := newTestEngine(store)

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestBuild_ReusesExistingSelfRecord(t *testing.T) {
	store := newMemStore(&models.Person{ID: "u1", FirstName: "John", Gender: models.GenderMale, CreatorID: "u1"})
	engine, notifier, _ := newTestEngine(store)

	self, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Father: &models.RelativeInput{Details: details("Robert", models.GenderMale)},
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", self.ID)
	require.NotNil(t, self.FatherID)
	assert.Len(t, notifier.created, 1, "only the father was created")
}

func TestBuild_LivingPersonWithDeathDateRejected(t *testing.T) {
	store := newMemStore()
	engine, _, _ := newTestEngine(store)

	req := details("John", models.GenderMale)
	death := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	req.DeathDate = &death

	_, err := engine.Build(context.Background(), "u1", models.BuildRequest{
		Self: models.RelativeInput{Details: req},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
