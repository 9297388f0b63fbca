package matching

import (
	"strings"
	"time"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

// Criterion weights. MaxScore is the fixed normalization base, so a
// candidate matching every criterion scores 100 percent.
const (
	WeightNameExact      = 30
	WeightNamePartial    = 15
	WeightResidencePin   = 25
	WeightBirthDateExact = 20
	WeightBirthDateNear  = 10
	WeightGender         = 5
	WeightOccupation     = 5
	WeightOccupationFuzz = 2
	WeightLifeStatus     = 5
	WeightLifeStatusNear = 3
	WeightResidenceCity  = 2
	MaxScore             = 95
)

// birthDateToleranceYears is the near-match window around a queried
// birth date; deathWindowYears spans whole calendar years around a
// queried death date.
const (
	birthDateToleranceYears = 2
	deathWindowYears        = 2
)

// Score computes the weighted point total of a candidate against a
// partial query. Absent criteria contribute nothing, so adding a
// matching criterion never lowers a score.
func Score(q models.MatchQuery, p *models.Person) int {
	score := 0
	score += nameScore(q, p)

	if q.ResidencePin != nil && p.ResidencePin != nil && *q.ResidencePin == *p.ResidencePin {
		score += WeightResidencePin
	}

	score += birthDateScore(q.BirthDate, p.BirthDate)

	if q.Gender != nil && *q.Gender == p.Gender {
		score += WeightGender
	}

	score += occupationScore(q.Occupation, p.Occupation)
	score += lifeStatusScore(q, p)

	if q.ResidenceCity != nil && p.ResidenceCity != nil && strings.EqualFold(*q.ResidenceCity, *p.ResidenceCity) {
		score += WeightResidenceCity
	}

	return score
}

// Percentage normalizes a raw score against the fixed maximum.
func Percentage(score int) float64 {
	return float64(score) / float64(MaxScore) * 100
}

// nameScore awards the full weight when either supplied name is an
// exact match; a looser substring hit on the combined name still earns
// the partial weight.
func nameScore(q models.MatchQuery, p *models.Person) int {
	if q.FirstName == nil && q.LastName == nil {
		return 0
	}

	firstMatches := q.FirstName != nil && strings.EqualFold(*q.FirstName, p.FirstName)
	lastMatches := q.LastName != nil && strings.EqualFold(*q.LastName, p.LastName)
	if firstMatches || lastMatches {
		return WeightNameExact
	}

	full := strings.ToLower(p.FirstName + " " + p.LastName)
	first, last := "", ""
	if q.FirstName != nil {
		first = strings.ToLower(*q.FirstName)
	}
	if q.LastName != nil {
		last = strings.ToLower(*q.LastName)
	}
	if idx := strings.Index(full, first); idx >= 0 && strings.Contains(full[idx+len(first):], last) {
		return WeightNamePartial
	}
	return 0
}

func birthDateScore(queried, actual *time.Time) int {
	if queried == nil || actual == nil {
		return 0
	}
	if sameDay(*queried, *actual) {
		return WeightBirthDateExact
	}
	if withinYears(*queried, *actual, birthDateToleranceYears) {
		return WeightBirthDateNear
	}
	return 0
}

func occupationScore(queried, actual *string) int {
	if queried == nil || actual == nil {
		return 0
	}
	q := strings.ToLower(strings.TrimSpace(*queried))
	a := strings.ToLower(strings.TrimSpace(*actual))
	if q == "" || a == "" {
		return 0
	}
	if q == a {
		return WeightOccupation
	}
	if strings.Contains(a, q) || strings.Contains(q, a) {
		return WeightOccupationFuzz
	}
	return 0
}

// lifeStatusScore grades a death date in two tiers: the full weight on
// an exact day, the near weight anywhere in the surrounding calendar
// years. A queried living status is all or nothing.
func lifeStatusScore(q models.MatchQuery, p *models.Person) int {
	if q.Living != nil && *q.Living == p.Living {
		return WeightLifeStatus
	}
	if q.DeathDate == nil || p.DeathDate == nil {
		return 0
	}
	if sameDay(*q.DeathDate, *p.DeathDate) {
		return WeightLifeStatus
	}

	year := q.DeathDate.UTC().Year()
	lower := time.Date(year-deathWindowYears, time.January, 1, 0, 0, 0, 0, time.UTC)
	upper := time.Date(year+deathWindowYears, time.December, 31, 23, 59, 59, 0, time.UTC)
	d := p.DeathDate.UTC()
	if !d.Before(lower) && !d.After(upper) {
		return WeightLifeStatusNear
	}
	return 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func withinYears(a, b time.Time, years int) bool {
	lower := a.AddDate(-years, 0, 0)
	upper := a.AddDate(years, 0, 0)
	return !b.Before(lower) && !b.After(upper)
}
