package models

import "time"

// PersonView is the read-model of a person inside a materialized tree.
// Audit fields stay internal.
type PersonView struct {
	ID               string       `json:"id"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	Gender           Gender       `json:"gender"`
	Living           bool         `json:"living"`
	BirthDate        *time.Time   `json:"birth_date,omitempty"`
	DeathDate        *time.Time   `json:"death_date,omitempty"`
	BirthCity        *string      `json:"birth_city,omitempty"`
	BirthState       *string      `json:"birth_state,omitempty"`
	BirthCountry     *string      `json:"birth_country,omitempty"`
	ResidenceCity    *string      `json:"residence_city,omitempty"`
	ResidenceState   *string      `json:"residence_state,omitempty"`
	ResidenceCountry *string      `json:"residence_country,omitempty"`
	Occupation       *string      `json:"occupation,omitempty"`
	ProfileImage     *string      `json:"profile_image,omitempty"`
	FatherID         *string      `json:"father_id,omitempty"`
	MotherID         *string      `json:"mother_id,omitempty"`
	Children         []string     `json:"children"`
	Spouses          []SpouseLink `json:"spouses"`
}

// RootSummary exposes only the root's direct pointers. The full views
// live in the flat people map so nothing is nested twice.
type RootSummary struct {
	ID       string   `json:"id"`
	FatherID *string  `json:"father_id,omitempty"`
	MotherID *string  `json:"mother_id,omitempty"`
	Children []string `json:"children"`
	Spouses  []string `json:"spouses"`
}

// MaterializedTree is the flattened, cycle-safe result of walking the
// graph outward from one root person.
type MaterializedTree struct {
	People map[string]PersonView `json:"people"`
	Tree   RootSummary           `json:"tree"`
}

// ViewOf projects a stored person onto its read-model.
func ViewOf(p *Person) PersonView {
	children := make([]string, len(p.Children))
	copy(children, p.Children)
	spouses := make([]SpouseLink, len(p.Spouses.Data))
	copy(spouses, p.Spouses.Data)

	return PersonView{
		ID:               p.ID,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Gender:           p.Gender,
		Living:           p.Living,
		BirthDate:        p.BirthDate,
		DeathDate:        p.DeathDate,
		BirthCity:        p.BirthCity,
		BirthState:       p.BirthState,
		BirthCountry:     p.BirthCountry,
		ResidenceCity:    p.ResidenceCity,
		ResidenceState:   p.ResidenceState,
		ResidenceCountry: p.ResidenceCountry,
		Occupation:       p.Occupation,
		ProfileImage:     p.ProfileImage,
		FatherID:         p.FatherID,
		MotherID:         p.MotherID,
		Children:         children,
		Spouses:          spouses,
	}
}
