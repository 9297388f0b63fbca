package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

const (
	// UnlockCost is debited when a fresh grant is created.
	UnlockCost = 10
	// RenewalReward is credited when an expired grant is renewed.
	RenewalReward = 10
	// GrantWindow is how long a grant or renewal stays valid.
	GrantWindow = 30 * 24 * time.Hour
)

type AccessStore interface {
	Get(ctx context.Context, userID, personID string) (*models.TreeAccess, error)
	Create(ctx context.Context, access *models.TreeAccess) (*models.TreeAccess, error)
	Extend(ctx context.Context, id string, expiresAt time.Time) error
}

type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Debit(ctx context.Context, id string, amount int) error
	CreditAllotment(ctx context.Context, id string, amount int) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger runs the per-(user, tree) grant state machine:
// NoGrant -> Active -> Expired -> Active again on renewal.
type Ledger struct {
	access AccessStore
	users  UserStore
	tx     TxRunner
	logger ectologger.Logger
	now    func() time.Time
}

func NewLedger(access AccessStore, users UserStore, tx TxRunner, logger ectologger.Logger) *Ledger {
	return &Ledger{
		access: access,
		users:  users,
		tx:     tx,
		logger: logger,
		now:    time.Now,
	}
}

// Unlock grants the user read access to the tree rooted at personID.
// An active grant returns unchanged and charges nothing. An expired
// grant is extended to now plus the grant window and the renewal reward
// is credited. A missing grant requires the spendable balance to cover
// the unlock cost before anything is persisted.
func (l *Ledger) Unlock(ctx context.Context, userID, personID string) (*models.UnlockResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Unlock")
	defer span.End()

	user, err := l.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	grant, err := l.access.Get(ctx, userID, personID)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()

	if grant != nil && grant.Active(now) {
		return &models.UnlockResponse{
			Outcome:         models.UnlockOutcomeActive,
			Access:          *grant,
			SpendableTokens: user.SpendableTokens(),
		}, nil
	}

	if grant != nil {
		expiresAt := now.Add(GrantWindow)
		err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := l.access.Extend(ctx, grant.ID, expiresAt); err != nil {
				return err
			}
			return l.users.CreditAllotment(ctx, userID, RenewalReward)
		})
		if err != nil {
			return nil, err
		}

		grant.ExpiresAt = expiresAt
		l.logger.WithContext(ctx).WithFields(map[string]any{"user_id": userID, "person_id": personID}).Info("Renewed tree access grant")
		return &models.UnlockResponse{
			Outcome:         models.UnlockOutcomeRenewed,
			Access:          *grant,
			SpendableTokens: user.SpendableTokens() + RenewalReward,
		}, nil
	}

	// balance check happens before any persistence
	if user.SpendableTokens() < UnlockCost {
		return nil, httperror.NewHTTPErrorf(http.StatusPaymentRequired, "insufficient tokens: %d spendable, %d required", user.SpendableTokens(), UnlockCost)
	}

	created := &models.TreeAccess{
		UserID:    userID,
		PersonID:  personID,
		GrantedAt: now,
		ExpiresAt: now.Add(GrantWindow),
	}
	err = l.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := l.access.Create(ctx, created); err != nil {
			return err
		}
		return l.users.Debit(ctx, userID, UnlockCost)
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{"user_id": userID, "person_id": personID}).Info("Granted tree access")
	return &models.UnlockResponse{
		Outcome:         models.UnlockOutcomeGranted,
		Access:          *created,
		SpendableTokens: user.SpendableTokens() - UnlockCost,
	}, nil
}

// HasAccess reports whether the user currently holds an unexpired grant
// for the tree rooted at personID.
func (l *Ledger) HasAccess(ctx context.Context, userID, personID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.HasAccess")
	defer span.End()

	grant, err := l.access.Get(ctx, userID, personID)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Active(l.now().UTC()), nil
}
