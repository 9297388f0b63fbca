package traversal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/cache"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

const (
	cacheKeyPrefix = "fullTree:"
	cacheTTL       = 3600 * time.Second
)

// PersonStore is the read surface of the materializer. GetMaybe returns
// nil for a dangling id so broken references are skipped, not errored.
type PersonStore interface {
	GetMaybe(ctx context.Context, id string) (*models.Person, error)
}

// Cache is the expiring key-value store memoizing materialized trees.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Materializer flattens the family graph reachable from a root person
// into a map of views. An explicit worklist with a visited set keeps
// the walk terminating on marriage-induced cycles and bounds stack
// depth regardless of graph shape.
type Materializer struct {
	store  PersonStore
	cache  Cache
	logger ectologger.Logger
}

func NewMaterializer(store PersonStore, cache Cache, logger ectologger.Logger) *Materializer {
	return &Materializer{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Materialize walks outward from rootID through father, mother,
// children and spouse pointers. Every reachable person appears exactly
// once in the result; results are cached per root for an hour.
func (m *Materializer) Materialize(ctx context.Context, rootID string) (*models.MaterializedTree, error) {
	ctx, span := tracing.StartSpan(ctx, "traversal.Materializer.Materialize")
	defer span.End()

	if tree := m.fromCache(ctx, rootID); tree != nil {
		return tree, nil
	}

	root, err := m.store.GetMaybe(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", rootID)
	}

	people := map[string]models.PersonView{}
	visited := map[string]bool{rootID: true}
	worklist := []*models.Person{root}

	for len(worklist) > 0 {
		p := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		people[p.ID] = models.ViewOf(p)

		for _, id := range neighbors(p) {
			if visited[id] {
				continue
			}
			visited[id] = true

			next, err := m.store.GetMaybe(ctx, id)
			if err != nil {
				return nil, err
			}
			if next == nil {
				continue // dangling reference
			}
			worklist = append(worklist, next)
		}
	}

	tree := &models.MaterializedTree{
		People: people,
		Tree:   rootSummary(root),
	}
	m.toCache(ctx, rootID, tree)
	return tree, nil
}

// Relations derives the edge-list view of the tree rooted at rootID
// from the embedded pointers. Parent edges point child to parent; each
// spouse pair yields a single edge.
func (m *Materializer) Relations(ctx context.Context, rootID string) ([]models.Relation, error) {
	ctx, span := tracing.StartSpan(ctx, "traversal.Materializer.Relations")
	defer span.End()

	tree, err := m.Materialize(ctx, rootID)
	if err != nil {
		return nil, err
	}

	var relations []models.Relation
	seenSpousePair := map[[2]string]bool{}
	for id, view := range tree.People {
		if view.FatherID != nil {
			relations = append(relations, models.Relation{RootID: rootID, FromID: id, ToID: *view.FatherID, Type: models.RelationTypeFather})
		}
		if view.MotherID != nil {
			relations = append(relations, models.Relation{RootID: rootID, FromID: id, ToID: *view.MotherID, Type: models.RelationTypeMother})
		}
		for _, link := range view.Spouses {
			pair := [2]string{id, link.SpouseID}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			if seenSpousePair[pair] {
				continue
			}
			seenSpousePair[pair] = true
			relations = append(relations, models.Relation{RootID: rootID, FromID: id, ToID: link.SpouseID, Type: models.RelationTypeSpouse})
		}
	}
	return relations, nil
}

// Invalidate drops the cached trees for the given roots. Mutations call
// this for every root whose reachable set they may have touched.
func (m *Materializer) Invalidate(ctx context.Context, rootIDs ...string) {
	if m.cache == nil || len(rootIDs) == 0 {
		return
	}

	keys := make([]string, len(rootIDs))
	for i, id := range rootIDs {
		keys[i] = cacheKeyPrefix + id
	}
	if err := m.cache.Del(ctx, keys...); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"roots": rootIDs}).Warnf("Failed to invalidate tree cache")
	}
}

func (m *Materializer) fromCache(ctx context.Context, rootID string) *models.MaterializedTree {
	if m.cache == nil {
		return nil
	}

	raw, err := m.cache.Get(ctx, cacheKeyPrefix+rootID)
	if err != nil {
		if !cache.IsMiss(err) {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"root_id": rootID}).Warnf("Tree cache read failed")
		}
		return nil
	}

	var tree models.MaterializedTree
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"root_id": rootID}).Warnf("Dropping undecodable tree cache entry")
		m.Invalidate(ctx, rootID)
		return nil
	}
	return &tree
}

func (m *Materializer) toCache(ctx context.Context, rootID string, tree *models.MaterializedTree) {
	if m.cache == nil {
		return
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, cacheKeyPrefix+rootID, string(raw), cacheTTL); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"root_id": rootID}).Warnf("Tree cache write failed")
	}
}

func neighbors(p *models.Person) []string {
	ids := make([]string, 0, 2+len(p.Children)+len(p.Spouses.Data))
	if p.FatherID != nil {
		ids = append(ids, *p.FatherID)
	}
	if p.MotherID != nil {
		ids = append(ids, *p.MotherID)
	}
	ids = append(ids, p.Children...)
	for _, link := range p.Spouses.Data {
		ids = append(ids, link.SpouseID)
	}
	return ids
}

func rootSummary(root *models.Person) models.RootSummary {
	spouses := make([]string, 0, len(root.Spouses.Data))
	for _, link := range root.Spouses.Data {
		spouses = append(spouses, link.SpouseID)
	}
	children := make([]string, len(root.Children))
	copy(children, root.Children)

	return models.RootSummary{
		ID:       root.ID,
		FatherID: root.FatherID,
		MotherID: root.MotherID,
		Children: children,
		Spouses:  spouses,
	}
}
