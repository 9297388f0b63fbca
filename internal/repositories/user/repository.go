package user

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tester620/server-ancestropedia-v1/pkg/database"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

var columns = []string{"id", "email", "first_name", "last_name", "alloted_tokens", "tokens", "created_at", "updated_at"}

// Repository handles user rows, which exist here only as token ledgers.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create upserts the user's profile row. Re-registering refreshes the
// profile fields but never resets the token counters.
func (r *Repository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Create")
	defer span.End()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("users")
	ib.Cols(columns...)
	ib.Values(u.ID, u.Email, u.FirstName, u.LastName, u.AllotedTokens, u.Tokens, u.CreatedAt, u.UpdatedAt)

	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("email", database.Excluded("email")),
		ub.Assign("first_name", database.Excluded("first_name")),
		ub.Assign("last_name", database.Excluded("last_name")),
		ub.Assign("updated_at", u.UpdatedAt),
	)

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": u.ID}).Error("Failed to create user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}
	return u, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("users")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var u models.User
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &u, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "user %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}
	return &u, nil
}

// Debit records a spend against the allotment. The WHERE clause guards
// the balance so a concurrent unlock cannot overdraw the ledger.
func (r *Repository) Debit(ctx context.Context, id string, amount int) error {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Debit")
	defer span.End()

	query := `UPDATE users SET tokens = tokens + $1, updated_at = now() WHERE id = $2 AND alloted_tokens - tokens >= $1`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, amount, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "amount": amount}).Error("Failed to debit tokens")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to debit tokens")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusPaymentRequired, "insufficient tokens")
	}
	return nil
}

// CreditAllotment grows the lifetime allotment, raising the spendable
// balance by the same amount.
func (r *Repository) CreditAllotment(ctx context.Context, id string, amount int) error {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.CreditAllotment")
	defer span.End()

	query := `UPDATE users SET alloted_tokens = alloted_tokens + $1, updated_at = now() WHERE id = $2`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, amount, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "amount": amount}).Error("Failed to credit tokens")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to credit tokens")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "user %s not found", id)
	}
	return nil
}
