package models

import "time"

// MatchQuery is a partial biographical description of the person being
// searched for. Every criterion is optional; absent criteria simply
// contribute no points.
type MatchQuery struct {
	FirstName    *string    `json:"first_name,omitempty"`
	LastName     *string    `json:"last_name,omitempty"`
	ResidencePin *string    `json:"residence_pin,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	DeathDate    *time.Time `json:"death_date,omitempty"`
	Gender       *Gender    `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Occupation   *string    `json:"occupation,omitempty"`
	Living       *bool      `json:"living,omitempty"`
	ResidenceCity *string   `json:"residence_city,omitempty"`

	Page int `json:"page" validate:"omitempty,min=1"`
}

// MatchResult pairs a candidate with its normalized score.
type MatchResult struct {
	Person     Person  `json:"person"`
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
}

// MatchListResponse is the paginated, score-ordered result envelope.
type MatchListResponse struct {
	Items      []MatchResult `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
