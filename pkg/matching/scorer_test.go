package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

func strptr(s string) *string          { return &s }
func boolptr(b bool) *bool             { return &b }
func genderptr(g models.Gender) *models.Gender { return &g }
func timeptr(t time.Time) *time.Time   { return &t }

func TestScore_FullMatchSumsEveryWeight(t *testing.T) {
	birth := time.Date(1950, 4, 12, 0, 0, 0, 0, time.UTC)
	q := models.MatchQuery{
		FirstName:     strptr("Robert"),
		LastName:      strptr("Doe"),
		ResidencePin:  strptr("560001"),
		BirthDate:     timeptr(birth),
		Gender:        genderptr(models.GenderMale),
		Occupation:    strptr("Carpenter"),
		Living:        boolptr(true),
		ResidenceCity: strptr("Bangalore"),
	}
	p := &models.Person{
		FirstName:     "Robert",
		LastName:      "Doe",
		Gender:        models.GenderMale,
		Living:        true,
		BirthDate:     timeptr(birth),
		ResidencePin:  strptr("560001"),
		Occupation:    strptr("Carpenter"),
		ResidenceCity: strptr("Bangalore"),
	}

	want := WeightNameExact + WeightResidencePin + WeightBirthDateExact +
		WeightGender + WeightOccupation + WeightLifeStatus + WeightResidenceCity

	score := Score(q, p)
	assert.Equal(t, want, score)
	assert.InDelta(t, float64(want)/float64(MaxScore)*100, Percentage(score), 0.001)
}

func TestScore_NameWeights(t *testing.T) {
	tests := []struct {
		name     string
		query    models.MatchQuery
		person   models.Person
		expected int
	}{
		{
			name:     "both names exact",
			query:    models.MatchQuery{FirstName: strptr("robert"), LastName: strptr("doe")},
			person:   models.Person{FirstName: "Robert", LastName: "Doe"},
			expected: WeightNameExact,
		},
		{
			name:     "either name exact earns the full weight",
			query:    models.MatchQuery{FirstName: strptr("Robert"), LastName: strptr("Smith")},
			person:   models.Person{FirstName: "Robert", LastName: "Doe"},
			expected: WeightNameExact,
		},
		{
			name:     "only last name queried and matching",
			query:    models.MatchQuery{LastName: strptr("Doe")},
			person:   models.Person{FirstName: "Robert", LastName: "Doe"},
			expected: WeightNameExact,
		},
		{
			name:     "substring without an exact hit is partial",
			query:    models.MatchQuery{FirstName: strptr("Rob")},
			person:   models.Person{FirstName: "Robert", LastName: "Doe"},
			expected: WeightNamePartial,
		},
		{
			name:     "no name match",
			query:    models.MatchQuery{FirstName: strptr("Alice"), LastName: strptr("Smith")},
			person:   models.Person{FirstName: "Robert", LastName: "Doe"},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Score(tt.query, &tt.person))
		})
	}
}

func TestScore_BirthDateTolerance(t *testing.T) {
	queried := time.Date(1950, 4, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		actual   time.Time
		expected int
	}{
		{"same day", queried, WeightBirthDateExact},
		{"one year off", queried.AddDate(1, 0, 0), WeightBirthDateNear},
		{"two years off", queried.AddDate(-2, 0, 0), WeightBirthDateNear},
		{"three years off", queried.AddDate(3, 0, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := models.MatchQuery{BirthDate: timeptr(queried)}
			p := models.Person{BirthDate: timeptr(tt.actual)}
			assert.Equal(t, tt.expected, Score(q, &p))
		})
	}
}

func TestScore_OccupationFuzzyMatch(t *testing.T) {
	q := models.MatchQuery{Occupation: strptr("carpenter")}

	exact := models.Person{Occupation: strptr("Carpenter")}
	assert.Equal(t, WeightOccupation, Score(q, &exact))

	fuzzy := models.Person{Occupation: strptr("master carpenter")}
	assert.Equal(t, WeightOccupationFuzz, Score(q, &fuzzy))

	none := models.Person{Occupation: strptr("baker")}
	assert.Equal(t, 0, Score(q, &none))
}

func TestScore_DeathDateTiers(t *testing.T) {
	death := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	q := models.MatchQuery{DeathDate: timeptr(death)}

	exact := models.Person{DeathDate: timeptr(death)}
	assert.Equal(t, WeightLifeStatus, Score(q, &exact))

	// anywhere inside the surrounding calendar years earns the near tier
	near := models.Person{DeathDate: timeptr(time.Date(1992, 12, 30, 0, 0, 0, 0, time.UTC))}
	assert.Equal(t, WeightLifeStatusNear, Score(q, &near))

	edge := models.Person{DeathDate: timeptr(time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC))}
	assert.Equal(t, WeightLifeStatusNear, Score(q, &edge))

	outside := models.Person{DeathDate: timeptr(time.Date(1993, 1, 1, 0, 0, 0, 0, time.UTC))}
	assert.Equal(t, 0, Score(q, &outside))
}

func TestScore_AddingCriteriaNeverLowersScore(t *testing.T) {
	p := &models.Person{
		FirstName:    "Robert",
		LastName:     "Doe",
		Gender:       models.GenderMale,
		ResidencePin: strptr("560001"),
	}

	base := Score(models.MatchQuery{LastName: strptr("Doe")}, p)
	more := Score(models.MatchQuery{LastName: strptr("Doe"), ResidencePin: strptr("560001")}, p)
	assert.GreaterOrEqual(t, more, base)
}
