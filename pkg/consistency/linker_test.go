package consistency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

type memStore struct {
	people map[string]*models.Person
}

func newMemStore(people ...*models.Person) *memStore {
	s := &memStore{people: map[string]*models.Person{}}
	for _, p := range people {
		s.people[p.ID] = p
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*models.Person, error) {
	p, ok := s.people[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", id)
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) Update(_ context.Context, p *models.Person) error {
	clone := *p
	s.people[p.ID] = &clone
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestLinkParentChild_SetsBothSides(t *testing.T) {
	store := newMemStore(
		&models.Person{ID: "father-1", Gender: models.GenderMale},
		&models.Person{ID: "child-1"},
	)
	linker := NewLinker(store, testLogger())

	err := linker.LinkParentChild(context.Background(), "father-1", "child-1", models.RelationTypeFather)
	require.NoError(t, err)

	child := store.people["child-1"]
	require.NotNil(t, child.FatherID)
	assert.Equal(t, "father-1", *child.FatherID)

	father := store.people["father-1"]
	assert.True(t, father.HasChild("child-1"))
	assert.Equal(t, 1, father.ChildrenCount)
	assert.True(t, father.HaveKids)
}

func TestLinkParentChild_Idempotent(t *testing.T) {
	store := newMemStore(
		&models.Person{ID: "mother-1", Gender: models.GenderFemale},
		&models.Person{ID: "child-1"},
	)
	linker := NewLinker(store, testLogger())

	require.NoError(t, linker.LinkParentChild(context.Background(), "mother-1", "child-1", models.RelationTypeMother))
	require.NoError(t, linker.LinkParentChild(context.Background(), "mother-1", "child-1", models.RelationTypeMother))

	mother := store.people["mother-1"]
	assert.Len(t, mother.Children, 1)
	assert.Equal(t, 1, mother.ChildrenCount)
}

func TestLinkParentChild_ConflictOnDifferentParent(t *testing.T) {
	existing := "father-1"
	store := newMemStore(
		&models.Person{ID: "father-1", Gender: models.GenderMale},
		&models.Person{ID: "father-2", Gender: models.GenderMale},
		&models.Person{ID: "child-1", FatherID: &existing},
	)
	linker := NewLinker(store, testLogger())

	err := linker.LinkParentChild(context.Background(), "father-2", "child-1", models.RelationTypeFather)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// neither side was written
	assert.Equal(t, "father-1", *store.people["child-1"].FatherID)
	assert.False(t, store.people["father-2"].HasChild("child-1"))
}

func TestLinkParentChild_RejectsSelfParent(t *testing.T) {
	store := newMemStore(&models.Person{ID: "p1"})
	linker := NewLinker(store, testLogger())

	err := linker.LinkParentChild(context.Background(), "p1", "p1", models.RelationTypeFather)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestLinkParentChild_RejectsSpouseRole(t *testing.T) {
	store := newMemStore(&models.Person{ID: "p1"}, &models.Person{ID: "p2"})
	linker := NewLinker(store, testLogger())

	err := linker.LinkParentChild(context.Background(), "p1", "p2", models.RelationTypeSpouse)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestLinkSpouses_MirrorsBothSides(t *testing.T) {
	store := newMemStore(&models.Person{ID: "a"}, &models.Person{ID: "b"})
	linker := NewLinker(store, testLogger())

	from := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)
	err := linker.LinkSpouses(context.Background(), "a", "b", models.MaritalStatusMarried, &from, nil, false)
	require.NoError(t, err)

	a, ok := store.people["a"].SpouseOf("b")
	require.True(t, ok)
	assert.Equal(t, models.MaritalStatusMarried, a.Status)
	assert.True(t, a.Ongoing, "marriage without an end date is ongoing")

	b, ok := store.people["b"].SpouseOf("a")
	require.True(t, ok)
	assert.Equal(t, models.MaritalStatusMarried, b.Status)
}

func TestLinkSpouses_RepairsOneSidedLink(t *testing.T) {
	a := &models.Person{ID: "a"}
	a.Spouses.Data = []models.SpouseLink{{SpouseID: "b", Status: models.MaritalStatusMarried, Ongoing: true}}
	store := newMemStore(a, &models.Person{ID: "b"})
	linker := NewLinker(store, testLogger())

	err := linker.LinkSpouses(context.Background(), "a", "b", models.MaritalStatusMarried, nil, nil, true)
	require.NoError(t, err)

	assert.Len(t, store.people["a"].Spouses.Data, 1)
	_, ok := store.people["b"].SpouseOf("a")
	assert.True(t, ok)
}

func TestLinkSpouses_DivorcedKeepsEndDate(t *testing.T) {
	store := newMemStore(&models.Person{ID: "a"}, &models.Person{ID: "b"})
	linker := NewLinker(store, testLogger())

	from := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2012, 3, 15, 0, 0, 0, 0, time.UTC)
	err := linker.LinkSpouses(context.Background(), "a", "b", models.MaritalStatusDivorced, &from, &to, false)
	require.NoError(t, err)

	link, ok := store.people["a"].SpouseOf("b")
	require.True(t, ok)
	assert.Equal(t, models.MaritalStatusDivorced, link.Status)
	assert.False(t, link.Ongoing)
	require.NotNil(t, link.ToDate)
	assert.Equal(t, to, *link.ToDate)
}

func TestLinkSpouses_RejectsSelfSpouse(t *testing.T) {
	store := newMemStore(&models.Person{ID: "a"})
	linker := NewLinker(store, testLogger())

	err := linker.LinkSpouses(context.Background(), "a", "a", models.MaritalStatusMarried, nil, nil, true)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
