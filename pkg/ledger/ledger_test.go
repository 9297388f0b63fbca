package ledger

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

type memAccessStore struct {
	grants map[string]*models.TreeAccess
}

func newMemAccessStore() *memAccessStore {
	return &memAccessStore{grants: map[string]*models.TreeAccess{}}
}

func (s *memAccessStore) Get(_ context.Context, userID, personID string) (*models.TreeAccess, error) {
	for _, g := range s.grants {
		if g.UserID == userID && g.PersonID == personID {
			clone := *g
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memAccessStore) Create(_ context.Context, access *models.TreeAccess) (*models.TreeAccess, error) {
	if access.ID == "" {
		access.ID = uuid.New().String()
	}
	clone := *access
	s.grants[access.ID] = &clone
	return access, nil
}

func (s *memAccessStore) Extend(_ context.Context, id string, expiresAt time.Time) error {
	g, ok := s.grants[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "grant %s not found", id)
	}
	g.ExpiresAt = expiresAt
	return nil
}

type memUserStore struct {
	users map[string]*models.User
}

func newMemUserStore(users ...*models.User) *memUserStore {
	s := &memUserStore{users: map[string]*models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memUserStore) Get(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "user %s not found", id)
	}
	clone := *u
	return &clone, nil
}

func (s *memUserStore) Debit(_ context.Context, id string, amount int) error {
	u := s.users[id]
	if u.AllotedTokens-u.Tokens < amount {
		return httperror.NewHTTPError(http.StatusPaymentRequired, "insufficient tokens")
	}
	u.Tokens += amount
	return nil
}

func (s *memUserStore) CreditAllotment(_ context.Context, id string, amount int) error {
	s.users[id].AllotedTokens += amount
	return nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestLedger(access *memAccessStore, users *memUserStore, now time.Time) *Ledger {
	l := NewLedger(access, users, passthroughTx{}, testLogger())
	l.now = func() time.Time { return now }
	return l
}

func TestUnlock_GrantsAndDebits(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	access := newMemAccessStore()
	users := newMemUserStore(&models.User{ID: "u1", AllotedTokens: 50, Tokens: 0})
	l := newTestLedger(access, users, now)

	resp, err := l.Unlock(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.Equal(t, models.UnlockOutcomeGranted, resp.Outcome)
	assert.Equal(t, 40, resp.SpendableTokens)
	assert.Equal(t, now.Add(GrantWindow), resp.Access.ExpiresAt)
	assert.Equal(t, UnlockCost, users.users["u1"].Tokens)
}

func TestUnlock_ActiveGrantIsFree(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	access := newMemAccessStore()
	_, err := access.Create(context.Background(), &models.TreeAccess{
		UserID:    "u1",
		PersonID:  "p1",
		GrantedAt: now.Add(-24 * time.Hour),
		ExpiresAt: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	users := newMemUserStore(&models.User{ID: "u1", AllotedTokens: 50, Tokens: 10})
	l := newTestLedger(access, users, now)

	resp, err := l.Unlock(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.Equal(t, models.UnlockOutcomeActive, resp.Outcome)
	assert.Equal(t, 40, resp.SpendableTokens)
	assert.Equal(t, 10, users.users["u1"].Tokens, "active grant must not charge")
}

func TestUnlock_RenewalExtendsAndRewards(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	access := newMemAccessStore()
	created, err := access.Create(context.Background(), &models.TreeAccess{
		UserID:    "u1",
		PersonID:  "p1",
		GrantedAt: now.Add(-60 * 24 * time.Hour),
		ExpiresAt: now.Add(-30 * 24 * time.Hour),
	})
	require.NoError(t, err)

	users := newMemUserStore(&models.User{ID: "u1", AllotedTokens: 50, Tokens: 10})
	l := newTestLedger(access, users, now)

	resp, err := l.Unlock(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.Equal(t, models.UnlockOutcomeRenewed, resp.Outcome)
	assert.Equal(t, now.Add(GrantWindow), resp.Access.ExpiresAt)
	assert.Equal(t, now.Add(GrantWindow), access.grants[created.ID].ExpiresAt)

	// renewal credits the allotment instead of refunding spend
	assert.Equal(t, 60, users.users["u1"].AllotedTokens)
	assert.Equal(t, 50, resp.SpendableTokens)
}

func TestUnlock_InsufficientBalancePersistsNothing(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	access := newMemAccessStore()
	users := newMemUserStore(&models.User{ID: "u1", AllotedTokens: 15, Tokens: 10})
	l := newTestLedger(access, users, now)

	_, err := l.Unlock(context.Background(), "u1", "p1")
	require.Error(t, err)
	assert.Equal(t, http.StatusPaymentRequired, httperror.GetStatusCode(err))

	assert.Empty(t, access.grants, "no grant may be created")
	assert.Equal(t, 10, users.users["u1"].Tokens, "no tokens may be spent")
}

func TestHasAccess(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	access := newMemAccessStore()
	users := newMemUserStore(&models.User{ID: "u1", AllotedTokens: 50})
	l := newTestLedger(access, users, now)

	ok, err := l.HasAccess(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.Unlock(context.Background(), "u1", "p1")
	require.NoError(t, err)

	ok, err = l.HasAccess(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	expired := newTestLedger(access, users, now.Add(GrantWindow).Add(time.Hour))
	ok, err = expired.HasAccess(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}
