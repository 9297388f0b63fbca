package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// PageSize is the fixed page length of match results.
const PageSize = 6

// CandidateStore narrows the candidate set in SQL before scoring.
type CandidateStore interface {
	FindCandidates(ctx context.Context, query models.MatchQuery) ([]models.Person, error)
}

// Service ranks candidates against a partial biographical query.
// Read-only: scoring happens in memory over the SQL prefilter.
type Service struct {
	store  CandidateStore
	logger ectologger.Logger
}

func NewService(store CandidateStore, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Match returns candidates with a non-zero score, sorted descending and
// paginated.
func (s *Service) Match(ctx context.Context, query models.MatchQuery) (*models.MatchListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Match")
	defer span.End()

	candidates, err := s.store.FindCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]models.MatchResult, 0, len(candidates))
	for i := range candidates {
		score := Score(query, &candidates[i])
		if score == 0 {
			continue
		}
		results = append(results, models.MatchResult{
			Person:     candidates[i],
			Score:      score,
			Percentage: Percentage(score),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Person.ID < results[j].Person.ID
	})

	page := query.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start > len(results) {
		start = len(results)
	}
	end := start + PageSize
	if end > len(results) {
		end = len(results)
	}

	return &models.MatchListResponse{
		Items:      results[start:end],
		TotalCount: len(results),
		Page:       page,
		PageSize:   PageSize,
	}, nil
}
