package traversal

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

type memStore struct {
	people map[string]*models.Person
	reads  int
}

func newMemStore(people ...*models.Person) *memStore {
	s := &memStore{people: map[string]*models.Person{}}
	for _, p := range people {
		s.people[p.ID] = p
	}
	return s
}

func (s *memStore) GetMaybe(_ context.Context, id string) (*models.Person, error) {
	s.reads++
	p, ok := s.people[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

type memCache struct {
	entries map[string]string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]string{}}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.entries[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.entries[key] = value.(string)
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strptr(s string) *string { return &s }

// family returns a three-generation graph with a marriage cycle:
// grandpa+grandma -> father, father+mother -> child.
func family() []*models.Person {
	grandpa := &models.Person{ID: "grandpa", Children: []string{"father"}}
	grandpa.Spouses.Data = []models.SpouseLink{{SpouseID: "grandma", Status: models.MaritalStatusMarried, Ongoing: true}}
	grandma := &models.Person{ID: "grandma", Children: []string{"father"}}
	grandma.Spouses.Data = []models.SpouseLink{{SpouseID: "grandpa", Status: models.MaritalStatusMarried, Ongoing: true}}

	father := &models.Person{ID: "father", FatherID: strptr("grandpa"), MotherID: strptr("grandma"), Children: []string{"child"}}
	father.Spouses.Data = []models.SpouseLink{{SpouseID: "mother", Status: models.MaritalStatusMarried, Ongoing: true}}
	mother := &models.Person{ID: "mother", Children: []string{"child"}}
	mother.Spouses.Data = []models.SpouseLink{{SpouseID: "father", Status: models.MaritalStatusMarried, Ongoing: true}}

	child := &models.Person{ID: "child", FatherID: strptr("father"), MotherID: strptr("mother")}

	return []*models.Person{grandpa, grandma, father, mother, child}
}

func TestMaterialize_WalksWholeGraphOnce(t *testing.T) {
	store := newMemStore(family()...)
	m := NewMaterializer(store, nil, testLogger())

	tree, err := m.Materialize(context.Background(), "child")
	require.NoError(t, err)

	assert.Len(t, tree.People, 5)
	for _, id := range []string{"grandpa", "grandma", "father", "mother", "child"} {
		_, ok := tree.People[id]
		assert.True(t, ok, "expected %s in materialized tree", id)
	}

	// every person fetched exactly once despite the marriage cycles
	assert.Equal(t, 5, store.reads)

	assert.Equal(t, "child", tree.Tree.ID)
	require.NotNil(t, tree.Tree.FatherID)
	assert.Equal(t, "father", *tree.Tree.FatherID)
}

func TestMaterialize_SkipsDanglingReferences(t *testing.T) {
	p := &models.Person{ID: "p1", FatherID: strptr("gone"), Children: []string{"also-gone"}}
	store := newMemStore(p)
	m := NewMaterializer(store, nil, testLogger())

	tree, err := m.Materialize(context.Background(), "p1")
	require.NoError(t, err)

	assert.Len(t, tree.People, 1)
	_, ok := tree.People["p1"]
	assert.True(t, ok)
}

func TestMaterialize_RootNotFound(t *testing.T) {
	m := NewMaterializer(newMemStore(), nil, testLogger())

	_, err := m.Materialize(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestMaterialize_ServesFromCache(t *testing.T) {
	store := newMemStore(family()...)
	cache := newMemCache()
	m := NewMaterializer(store, cache, testLogger())

	first, err := m.Materialize(context.Background(), "child")
	require.NoError(t, err)
	readsAfterFirst := store.reads

	second, err := m.Materialize(context.Background(), "child")
	require.NoError(t, err)

	assert.Equal(t, readsAfterFirst, store.reads, "cache hit must not touch the store")
	assert.Equal(t, len(first.People), len(second.People))
}

func TestMaterialize_InvalidateForcesRebuild(t *testing.T) {
	store := newMemStore(family()...)
	cache := newMemCache()
	m := NewMaterializer(store, cache, testLogger())

	_, err := m.Materialize(context.Background(), "child")
	require.NoError(t, err)

	m.Invalidate(context.Background(), "child")
	assert.Empty(t, cache.entries)

	readsBefore := store.reads
	_, err = m.Materialize(context.Background(), "child")
	require.NoError(t, err)
	assert.Greater(t, store.reads, readsBefore)
}

func TestMaterialize_DropsUndecodableCacheEntry(t *testing.T) {
	store := newMemStore(family()...)
	cache := newMemCache()
	cache.entries["fullTree:child"] = "{not json"
	m := NewMaterializer(store, cache, testLogger())

	tree, err := m.Materialize(context.Background(), "child")
	require.NoError(t, err)
	assert.Len(t, tree.People, 5)

	// the bad entry was replaced by the rebuilt tree
	var cached models.MaterializedTree
	require.NoError(t, json.Unmarshal([]byte(cache.entries["fullTree:child"]), &cached))
	assert.Len(t, cached.People, 5)
}

func TestRelations_DerivesDedupedEdges(t *testing.T) {
	store := newMemStore(family()...)
	m := NewMaterializer(store, nil, testLogger())

	relations, err := m.Relations(context.Background(), "child")
	require.NoError(t, err)

	var fathers, mothers, spouses int
	for _, rel := range relations {
		assert.Equal(t, "child", rel.RootID)
		switch rel.Type {
		case models.RelationTypeFather:
			fathers++
		case models.RelationTypeMother:
			mothers++
		case models.RelationTypeSpouse:
			spouses++
		}
	}

	// child->father, father->grandpa
	assert.Equal(t, 2, fathers)
	// child->mother, father->grandma
	assert.Equal(t, 2, mothers)
	// each couple appears once even though both sides carry the link
	assert.Equal(t, 2, spouses)
}
