package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

type staticStore struct {
	candidates []models.Person
}

func (s *staticStore) FindCandidates(_ context.Context, _ models.MatchQuery) ([]models.Person, error) {
	return s.candidates, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestMatch_FiltersZeroScoresAndSortsDescending(t *testing.T) {
	store := &staticStore{candidates: []models.Person{
		{ID: "exact", FirstName: "Robert", LastName: "Doe"},
		{ID: "partial", FirstName: "Roberta", LastName: "Smith"},
		{ID: "unrelated", FirstName: "Alice", LastName: "Jones"},
	}}
	s := NewService(store, testLogger())

	resp, err := s.Match(context.Background(), models.MatchQuery{
		FirstName: strptr("Robert"),
	})
	require.NoError(t, err)

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "exact", resp.Items[0].Person.ID)
	assert.Equal(t, WeightNameExact, resp.Items[0].Score)
	assert.Equal(t, "partial", resp.Items[1].Person.ID)
	assert.Equal(t, WeightNamePartial, resp.Items[1].Score)
	assert.Equal(t, 2, resp.TotalCount)
}

func TestMatch_PaginatesSixPerPage(t *testing.T) {
	var candidates []models.Person
	for i := 0; i < 8; i++ {
		candidates = append(candidates, models.Person{
			ID:        fmt.Sprintf("p%d", i),
			FirstName: "Robert",
		})
	}
	s := NewService(&staticStore{candidates: candidates}, testLogger())

	query := models.MatchQuery{FirstName: strptr("Robert")}

	first, err := s.Match(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, first.Items, PageSize)
	assert.Equal(t, 8, first.TotalCount)
	assert.Equal(t, 1, first.Page)

	query.Page = 2
	second, err := s.Match(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.Equal(t, 2, second.Page)

	query.Page = 3
	third, err := s.Match(context.Background(), query)
	require.NoError(t, err)
	assert.Empty(t, third.Items)
}

func TestMatch_TieBreaksByID(t *testing.T) {
	store := &staticStore{candidates: []models.Person{
		{ID: "b", FirstName: "Robert"},
		{ID: "a", FirstName: "Robert"},
	}}
	s := NewService(store, testLogger())

	resp, err := s.Match(context.Background(), models.MatchQuery{FirstName: strptr("Robert")})
	require.NoError(t, err)

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "a", resp.Items[0].Person.ID)
	assert.Equal(t, "b", resp.Items[1].Person.ID)
}
