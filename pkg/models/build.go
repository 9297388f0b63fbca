package models

import "time"

// RelativeInput supplies one relative for a build call: either a
// reference to an existing person (Selected) or inline biographical
// data to create one (Details). Exactly one side should be set.
type RelativeInput struct {
	Selected *string              `json:"selected,omitempty" validate:"omitempty,uuid"`
	Details  *CreatePersonRequest `json:"details,omitempty"`
}

// IsZero reports whether neither a selection nor details were supplied.
func (r *RelativeInput) IsZero() bool {
	return r == nil || (r.Selected == nil && r.Details == nil)
}

// BuildRequest is the input of the tree build/merge operation. Self is
// required; every other relative is optional.
type BuildRequest struct {
	Self     RelativeInput   `json:"self"`
	Father   *RelativeInput  `json:"father,omitempty"`
	Mother   *RelativeInput  `json:"mother,omitempty"`
	Spouse   *RelativeInput  `json:"spouse,omitempty"`
	Children []RelativeInput `json:"children,omitempty"`
	Siblings []RelativeInput `json:"siblings,omitempty"`

	// Marriage metadata applied when the spouse is created inline.
	MarriageStatus   *MaritalStatus `json:"marriage_status,omitempty" validate:"omitempty,oneof=married divorced widowed"`
	MarriageFromDate *time.Time     `json:"marriage_from_date,omitempty"`
	MarriageToDate   *time.Time     `json:"marriage_to_date,omitempty"`
}
