package models

import (
	"time"

	"github.com/lib/pq"
)

// Tree is a named collection of members around an owner. The family
// graph itself lives on Person nodes; a Tree row only names a grouping
// and who belongs to it.
type Tree struct {
	ID        string         `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	OwnerID   string         `json:"owner_id" db:"owner_id"`
	Members   pq.StringArray `json:"members" db:"members"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

type CreateTreeRequest struct {
	Name string `json:"name" validate:"required,min=2,max=20"`
}

type AddTreeMemberRequest struct {
	MemberID string `json:"member_id" validate:"required,uuid"`
}

type RenameTreeRequest struct {
	Name string `json:"name" validate:"required,min=2,max=20"`
}
