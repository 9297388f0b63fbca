package person

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

func strptr(s string) *string { return &s }

func TestCandidateQuery_AcceptsEveryScoreableCriterion(t *testing.T) {
	gender := models.GenderFemale
	living := false
	death := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query models.MatchQuery
		want  string
	}{
		{"gender only", models.MatchQuery{Gender: &gender}, "gender"},
		{"occupation only", models.MatchQuery{Occupation: strptr("carpenter")}, "occupation"},
		{"living only", models.MatchQuery{Living: &living}, "living"},
		{"death date only", models.MatchQuery{DeathDate: &death}, "death_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := candidateQuery(tt.query)
			require.NoError(t, err)
			assert.Contains(t, sql, tt.want)
			assert.NotEmpty(t, args)
		})
	}
}

func TestCandidateQuery_EmptyQueryIsRejected(t *testing.T) {
	_, _, err := candidateQuery(models.MatchQuery{})
	require.Error(t, err)
}

func TestCandidateQuery_DeathWindowSpansCalendarYears(t *testing.T) {
	death := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)

	_, args, err := candidateQuery(models.MatchQuery{DeathDate: &death})
	require.NoError(t, err)

	require.Len(t, args, 2)
	assert.Equal(t, time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC), args[0])
	assert.Equal(t, time.Date(1992, 12, 31, 23, 59, 59, 0, time.UTC), args[1])
}
