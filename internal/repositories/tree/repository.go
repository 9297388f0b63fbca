package tree

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

var columns = []string{"id", "name", "owner_id", "members", "created_at", "updated_at"}

// Repository handles the named tree collections of the grouped-family
// access model.
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

func (r *Repository) Create(ctx context.Context, t *models.Tree) (*models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.Create")
	defer span.End()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Members == nil {
		t.Members = []string{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("trees")
	sb.Cols(columns...)
	sb.Values(t.ID, t.Name, t.OwnerID, t.Members, t.CreatedAt, t.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": t.Name, "owner_id": t.OwnerID}).Error("Failed to create tree")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tree")
	}
	return t, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("trees")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var t models.Tree
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &t, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "tree %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get tree")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tree")
	}
	return &t, nil
}

func (r *Repository) ListForOwner(ctx context.Context, ownerID string) ([]models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.ListForOwner")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("trees")
	sb.Where(sb.Equal("owner_id", ownerID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var trees []models.Tree
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &trees, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID}).Error("Failed to list trees")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list trees")
	}
	return trees, nil
}

// AddMember appends a person to the member list unless already present.
func (r *Repository) AddMember(ctx context.Context, id, memberID string) error {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.AddMember")
	defer span.End()

	query := `UPDATE trees SET members = array_append(members, $1), updated_at = now() WHERE id = $2 AND NOT ($1 = ANY(members))`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, memberID, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "member_id": memberID}).Error("Failed to add tree member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add tree member")
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		// either the tree is missing or the member already exists
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Rename updates the tree's display name, scoped to its owner.
func (r *Repository) Rename(ctx context.Context, id, ownerID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.Rename")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("trees")
	sb.Set(
		sb.Assign("name", name),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("owner_id", ownerID),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to rename tree")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to rename tree")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "tree %s not found", id)
	}
	return nil
}

// RemoveMember drops a person from the member list.
func (r *Repository) RemoveMember(ctx context.Context, id, memberID string) error {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.RemoveMember")
	defer span.End()

	query := `UPDATE trees SET members = array_remove(members, $1), updated_at = now() WHERE id = $2`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, memberID, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "member_id": memberID}).Error("Failed to remove tree member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove tree member")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "tree %s not found", id)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id, ownerID string) error {
	ctx, span := tracing.StartSpan(ctx, "tree.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("trees")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("owner_id", ownerID),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete tree")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete tree")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "tree %s not found", id)
	}
	return nil
}
