package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/tester620/server-ancestropedia-v1/pkg/database"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// MaritalStatus describes the state of a spouse link.
type MaritalStatus string

const (
	MaritalStatusMarried  MaritalStatus = "married"
	MaritalStatusDivorced MaritalStatus = "divorced"
	MaritalStatusWidowed  MaritalStatus = "widowed"
)

// SpouseLink is one entry of a person's spouses list. Ongoing marks a
// marriage with no end date instead of a sentinel date value.
type SpouseLink struct {
	SpouseID string        `json:"spouse_id"`
	Status   MaritalStatus `json:"status"`
	FromDate *time.Time    `json:"from_date,omitempty"`
	ToDate   *time.Time    `json:"to_date,omitempty"`
	Ongoing  bool          `json:"ongoing"`
}

// Person is a node of the family graph. Parent pointers are nullable
// single references, children is an id array and spouses a jsonb list,
// so every relationship is embedded on both sides of the edge.
type Person struct {
	ID               string                        `json:"id" db:"id"`
	FirstName        string                        `json:"first_name" db:"first_name"`
	LastName         string                        `json:"last_name" db:"last_name"`
	Gender           Gender                        `json:"gender" db:"gender"`
	Living           bool                          `json:"living" db:"living"`
	BirthDate        *time.Time                    `json:"birth_date,omitempty" db:"birth_date"`
	DeathDate        *time.Time                    `json:"death_date,omitempty" db:"death_date"`
	BirthCity        *string                       `json:"birth_city,omitempty" db:"birth_city"`
	BirthState       *string                       `json:"birth_state,omitempty" db:"birth_state"`
	BirthCountry     *string                       `json:"birth_country,omitempty" db:"birth_country"`
	BirthPin         *string                       `json:"birth_pin,omitempty" db:"birth_pin"`
	ResidenceCity    *string                       `json:"residence_city,omitempty" db:"residence_city"`
	ResidenceState   *string                       `json:"residence_state,omitempty" db:"residence_state"`
	ResidenceCountry *string                       `json:"residence_country,omitempty" db:"residence_country"`
	ResidencePin     *string                       `json:"residence_pin,omitempty" db:"residence_pin"`
	Occupation       *string                       `json:"occupation,omitempty" db:"occupation"`
	ProfileImage     *string                       `json:"profile_image,omitempty" db:"profile_image"`
	FatherID         *string                       `json:"father_id,omitempty" db:"father_id"`
	MotherID         *string                       `json:"mother_id,omitempty" db:"mother_id"`
	Children         pq.StringArray                `json:"children" db:"children"`
	Spouses          database.JSONB[[]SpouseLink]  `json:"spouses" db:"spouses"`
	ChildrenCount    int                           `json:"children_count" db:"children_count"`
	HaveKids         bool                          `json:"have_kids" db:"have_kids"`
	CreatorID        string                        `json:"creator_id" db:"creator_id"`
	EditedBy         *string                       `json:"edited_by,omitempty" db:"edited_by"`
	CreatedAt        time.Time                     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                     `json:"updated_at" db:"updated_at"`
}

// SpouseOf returns the link to the given spouse id, if any.
func (p *Person) SpouseOf(id string) (SpouseLink, bool) {
	for _, link := range p.Spouses.Data {
		if link.SpouseID == id {
			return link, true
		}
	}
	return SpouseLink{}, false
}

// HasChild reports whether id is already present in the children list.
func (p *Person) HasChild(id string) bool {
	for _, child := range p.Children {
		if child == id {
			return true
		}
	}
	return false
}

// CreatePersonRequest is the payload for creating a single person node.
type CreatePersonRequest struct {
	FirstName        string     `json:"first_name" validate:"required"`
	LastName         string     `json:"last_name" validate:"required"`
	Gender           Gender     `json:"gender" validate:"required,oneof=male female other"`
	Living           bool       `json:"living"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	DeathDate        *time.Time `json:"death_date,omitempty"`
	BirthCity        *string    `json:"birth_city,omitempty"`
	BirthState       *string    `json:"birth_state,omitempty"`
	BirthCountry     *string    `json:"birth_country,omitempty"`
	BirthPin         *string    `json:"birth_pin,omitempty"`
	ResidenceCity    *string    `json:"residence_city,omitempty"`
	ResidenceState   *string    `json:"residence_state,omitempty"`
	ResidenceCountry *string    `json:"residence_country,omitempty"`
	ResidencePin     *string    `json:"residence_pin,omitempty"`
	Occupation       *string    `json:"occupation,omitempty"`
	ProfileImage     *string    `json:"profile_image,omitempty"`
}

// UpdatePersonRequest carries a partial edit of a person's biographical
// fields. Relationship pointers are never edited directly; they change
// through the build and merge operations only.
type UpdatePersonRequest struct {
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	Gender           *Gender    `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Living           *bool      `json:"living,omitempty"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	DeathDate        *time.Time `json:"death_date,omitempty"`
	BirthCity        *string    `json:"birth_city,omitempty"`
	BirthState       *string    `json:"birth_state,omitempty"`
	BirthCountry     *string    `json:"birth_country,omitempty"`
	BirthPin         *string    `json:"birth_pin,omitempty"`
	ResidenceCity    *string    `json:"residence_city,omitempty"`
	ResidenceState   *string    `json:"residence_state,omitempty"`
	ResidenceCountry *string    `json:"residence_country,omitempty"`
	ResidencePin     *string    `json:"residence_pin,omitempty"`
	Occupation       *string    `json:"occupation,omitempty"`
	ProfileImage     *string    `json:"profile_image,omitempty"`
}

// PersonListResponse is the paginated search result envelope.
type PersonListResponse struct {
	Items      []Person `json:"items"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}
