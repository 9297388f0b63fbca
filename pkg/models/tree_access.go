package models

import "time"

// TreeAccess is one grant in the access ledger: the user may read the
// tree rooted at PersonID until ExpiresAt.
type TreeAccess struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PersonID  string    `json:"person_id" db:"person_id"`
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Active reports whether the grant is still valid at the given instant.
func (a *TreeAccess) Active(now time.Time) bool {
	return now.Before(a.ExpiresAt)
}

// UnlockRequest asks for access to the tree rooted at PersonID.
type UnlockRequest struct {
	PersonID string `json:"person_id" validate:"required,uuid"`
}

// UnlockOutcome describes how an unlock request was satisfied.
type UnlockOutcome string

const (
	// UnlockOutcomeActive means an unexpired grant already covered the tree.
	UnlockOutcomeActive UnlockOutcome = "active"
	// UnlockOutcomeRenewed means an expired grant was renewed in place.
	UnlockOutcomeRenewed UnlockOutcome = "renewed"
	// UnlockOutcomeGranted means a fresh grant was created and paid for.
	UnlockOutcomeGranted UnlockOutcome = "granted"
)

// UnlockResponse returns the resulting grant and the remaining balance.
type UnlockResponse struct {
	Outcome         UnlockOutcome `json:"outcome"`
	Access          TreeAccess    `json:"access"`
	SpendableTokens int           `json:"spendable_tokens"`
}
