package treeaccess

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

var columns = []string{"id", "user_id", "person_id", "granted_at", "expires_at", "created_at", "updated_at"}

// Repository handles the tree access grant ledger. At most one row
// exists per (user, root person) pair; renewals update it in place.
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

// Get returns the grant for (userID, personID), or nil when none exists.
func (r *Repository) Get(ctx context.Context, userID, personID string) (*models.TreeAccess, error) {
	ctx, span := tracing.StartSpan(ctx, "treeaccess.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("tree_access")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.Equal("person_id", personID),
	)

	query, args := sb.Build()
	var access models.TreeAccess
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &access, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID, "person_id": personID}).Error("Failed to get tree access")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tree access")
	}
	return &access, nil
}

func (r *Repository) Create(ctx context.Context, access *models.TreeAccess) (*models.TreeAccess, error) {
	ctx, span := tracing.StartSpan(ctx, "treeaccess.Repository.Create")
	defer span.End()

	if access.ID == "" {
		access.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	access.CreatedAt = now
	access.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("tree_access")
	sb.Cols(columns...)
	sb.Values(access.ID, access.UserID, access.PersonID, access.GrantedAt, access.ExpiresAt, access.CreatedAt, access.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": access.UserID, "person_id": access.PersonID}).Error("Failed to create tree access")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tree access")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"user_id": access.UserID, "person_id": access.PersonID}).Info("Created tree access grant")
	return access, nil
}

// Extend moves the expiry of an existing grant.
func (r *Repository) Extend(ctx context.Context, id string, expiresAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "treeaccess.Repository.Extend")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("tree_access")
	sb.Set(
		sb.Assign("expires_at", expiresAt),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to extend tree access")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to extend tree access")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "tree access %s not found", id)
	}
	return nil
}

// ListForUser returns every grant a user holds, expired ones included.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]models.TreeAccess, error) {
	ctx, span := tracing.StartSpan(ctx, "treeaccess.Repository.ListForUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("tree_access")
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("granted_at DESC")

	query, args := sb.Build()
	var grants []models.TreeAccess
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &grants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to list tree access grants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tree access grants")
	}
	return grants, nil
}
