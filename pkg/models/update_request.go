package models

import (
	"encoding/json"
	"time"
)

type UpdateRequestStatus string

const (
	UpdateRequestStatusPending  UpdateRequestStatus = "pending"
	UpdateRequestStatusApproved UpdateRequestStatus = "approved"
	UpdateRequestStatusRejected UpdateRequestStatus = "rejected"
)

// UpdateRequest is a proposed edit to a person raised by someone other
// than the record's creator. Only the changed fields are stored,
// previous and proposed values keyed by field name, so the creator
// reviews an exact diff.
type UpdateRequest struct {
	ID          string              `json:"id" db:"id"`
	UserID      string              `json:"user_id" db:"user_id"`
	PersonID    string              `json:"person_id" db:"person_id"`
	PrevData    json.RawMessage     `json:"prev_data" db:"prev_data"`
	UpdatedData json.RawMessage     `json:"updated_data" db:"updated_data"`
	Proof       *string             `json:"proof,omitempty" db:"proof"`
	Status      UpdateRequestStatus `json:"status" db:"status"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

type CreateUpdateRequestRequest struct {
	PersonID    string          `json:"person_id" validate:"required,uuid"`
	UpdatedData json.RawMessage `json:"updated_data" validate:"required"`
	Proof       *string         `json:"proof,omitempty"`
}

type ResolveUpdateRequestRequest struct {
	Approve bool `json:"approve"`
}
