package updaterequest

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

var columns = []string{"id", "user_id", "person_id", "prev_data", "updated_data", "proof", "status", "created_at", "updated_at"}

// Repository handles pending correction proposals against persons.
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

func (r *Repository) Create(ctx context.Context, req *models.UpdateRequest) (*models.UpdateRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "updaterequest.Repository.Create")
	defer span.End()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = models.UpdateRequestStatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("update_requests")
	sb.Cols(columns...)
	sb.Values(req.ID, req.UserID, req.PersonID, []byte(req.PrevData), []byte(req.UpdatedData), req.Proof, req.Status, req.CreatedAt, req.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": req.PersonID, "user_id": req.UserID}).Error("Failed to create update request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create update request")
	}
	return req, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.UpdateRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "updaterequest.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("update_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var req models.UpdateRequest
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &req, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "update request %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get update request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get update request")
	}
	return &req, nil
}

// ListForPerson returns pending requests targeting the given person.
func (r *Repository) ListForPerson(ctx context.Context, personID string) ([]models.UpdateRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "updaterequest.Repository.ListForPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("update_requests")
	sb.Where(
		sb.Equal("person_id", personID),
		sb.Equal("status", models.UpdateRequestStatusPending),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var reqs []models.UpdateRequest
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &reqs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": personID}).Error("Failed to list update requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list update requests")
	}
	return reqs, nil
}

// SetStatus resolves a pending request. Already-resolved requests stay
// untouched and report a conflict.
func (r *Repository) SetStatus(ctx context.Context, id string, status models.UpdateRequestStatus) error {
	ctx, span := tracing.StartSpan(ctx, "updaterequest.Repository.SetStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("update_requests")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.UpdateRequestStatusPending),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to set update request status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "update request %s is not pending", id)
	}
	return nil
}
