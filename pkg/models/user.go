package models

import "time"

// User carries the token ledger used to pay for tree access grants.
// AllotedTokens is the lifetime allotment and Tokens the lifetime spend,
// so the spendable balance is the difference of the two counters.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	AllotedTokens int       `json:"alloted_tokens" db:"alloted_tokens"`
	Tokens        int       `json:"tokens" db:"tokens"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// SpendableTokens returns the balance available for new unlocks.
func (u *User) SpendableTokens() int {
	return u.AllotedTokens - u.Tokens
}
