package person

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tester620/server-ancestropedia-v1/pkg/database"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// searchPageSize matches the match scorer's result paging.
const searchPageSize = 6

var columns = []string{
	"id", "first_name", "last_name", "gender", "living", "birth_date", "death_date",
	"birth_city", "birth_state", "birth_country", "birth_pin",
	"residence_city", "residence_state", "residence_country", "residence_pin",
	"occupation", "profile_image", "father_id", "mother_id", "children", "spouses",
	"children_count", "have_kids", "creator_id", "edited_by", "created_at", "updated_at",
}

// Repository handles person persistence. All reads and writes resolve
// the context transaction first, so builder steps share one tx.
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

// Create inserts a new person. A missing id is assigned here so the
// identity merge can key a clone by a caller-chosen id.
func (r *Repository) Create(ctx context.Context, p *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Children == nil {
		p.Children = []string{}
	}
	if p.Spouses.Data == nil {
		p.Spouses.Data = []models.SpouseLink{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("persons")
	sb.Cols(columns...)
	sb.Values(
		p.ID, p.FirstName, p.LastName, p.Gender, p.Living, p.BirthDate, p.DeathDate,
		p.BirthCity, p.BirthState, p.BirthCountry, p.BirthPin,
		p.ResidenceCity, p.ResidenceState, p.ResidenceCountry, p.ResidencePin,
		p.Occupation, p.ProfileImage, p.FatherID, p.MotherID, p.Children, p.Spouses,
		p.ChildrenCount, p.HaveKids, p.CreatorID, p.EditedBy, p.CreatedAt, p.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": p.ID}).Error("Failed to create person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": p.ID}).Info("Created person")
	return p, nil
}

// Get retrieves a person by id, failing with 404 when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	p, err := r.GetMaybe(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", id)
	}
	return p, nil
}

// GetMaybe retrieves a person by id, returning nil for a dangling id.
// The materializer relies on this to skip missing references silently.
func (r *Repository) GetMaybe(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetMaybe")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p models.Person
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}
	return &p, nil
}

// GetByIDs retrieves all existing persons among ids. Missing ids are
// simply absent from the result.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()
	var persons []models.Person
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to get persons by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get persons")
	}
	return persons, nil
}

// Update writes back every mutable column of the person.
func (r *Repository) Update(ctx context.Context, p *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Update")
	defer span.End()

	p.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("persons")
	sb.Set(
		sb.Assign("first_name", p.FirstName),
		sb.Assign("last_name", p.LastName),
		sb.Assign("gender", p.Gender),
		sb.Assign("living", p.Living),
		sb.Assign("birth_date", p.BirthDate),
		sb.Assign("death_date", p.DeathDate),
		sb.Assign("birth_city", p.BirthCity),
		sb.Assign("birth_state", p.BirthState),
		sb.Assign("birth_country", p.BirthCountry),
		sb.Assign("birth_pin", p.BirthPin),
		sb.Assign("residence_city", p.ResidenceCity),
		sb.Assign("residence_state", p.ResidenceState),
		sb.Assign("residence_country", p.ResidenceCountry),
		sb.Assign("residence_pin", p.ResidencePin),
		sb.Assign("occupation", p.Occupation),
		sb.Assign("profile_image", p.ProfileImage),
		sb.Assign("father_id", p.FatherID),
		sb.Assign("mother_id", p.MotherID),
		sb.Assign("children", p.Children),
		sb.Assign("spouses", p.Spouses),
		sb.Assign("children_count", p.ChildrenCount),
		sb.Assign("have_kids", p.HaveKids),
		sb.Assign("edited_by", p.EditedBy),
		sb.Assign("updated_at", p.UpdatedAt),
	)
	sb.Where(sb.Equal("id", p.ID))

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": p.ID}).Error("Failed to update person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update person")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", p.ID)
	}
	return nil
}

// Delete removes a person record. Only the identity merge uses this,
// after every pointer to the id has been rewritten.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("persons")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete person")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted person")
	return nil
}

// ReassignPointers rewrites every reference to oldID so it points at
// newID: father and mother columns, children arrays, and each spouse
// list entry. The fan-out is enumerated here in full so the identity
// merge can be reasoned about in one place.
func (r *Repository) ReassignPointers(ctx context.Context, oldID, newID string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ReassignPointers")
	defer span.End()

	q := database.FromContext(ctx, r.db)

	for _, column := range []string{"father_id", "mother_id"} {
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("persons")
		sb.Set(sb.Assign(column, newID))
		sb.Where(sb.Equal(column, oldID))

		query, args := sb.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"old_id": oldID, "new_id": newID, "column": column}).Error("Failed to reassign parent pointers")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign parent pointers")
		}
	}

	childrenQuery := `UPDATE persons SET children = array_replace(children, $1, $2), updated_at = now() WHERE $1 = ANY(children)`
	if _, err := q.ExecContext(ctx, childrenQuery, oldID, newID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"old_id": oldID, "new_id": newID}).Error("Failed to reassign children pointers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign children pointers")
	}

	return r.reassignSpousePointers(ctx, oldID, newID)
}

// Spouse entries carry status and date fields next to the id, so they
// are rewritten in Go rather than with a jsonb path expression.
func (r *Repository) reassignSpousePointers(ctx context.Context, oldID, newID string) error {
	q := database.FromContext(ctx, r.db)

	query := fmt.Sprintf(`SELECT %s FROM persons WHERE spouses @> $1`, joinColumns())
	filter, err := json.Marshal([]map[string]string{{"spouse_id": oldID}})
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign spouse pointers")
	}

	var persons []models.Person
	if err := q.SelectContext(ctx, &persons, query, filter); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"old_id": oldID, "new_id": newID}).Error("Failed to find spouse references")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign spouse pointers")
	}

	for i := range persons {
		p := &persons[i]
		for j := range p.Spouses.Data {
			if p.Spouses.Data[j].SpouseID == oldID {
				p.Spouses.Data[j].SpouseID = newID
			}
		}

		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("persons")
		sb.Set(
			sb.Assign("spouses", p.Spouses),
			sb.Assign("updated_at", time.Now().UTC()),
		)
		sb.Where(sb.Equal("id", p.ID))

		updateQuery, args := sb.Build()
		if _, err := q.ExecContext(ctx, updateQuery, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": p.ID, "old_id": oldID, "new_id": newID}).Error("Failed to rewrite spouse entry")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign spouse pointers")
		}
	}

	return nil
}

// candidateQuery builds the OR prefilter over every scoreable
// criterion. Scoring and ranking happen in the scorer, not here.
func candidateQuery(query models.MatchQuery) (string, []any, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")

	var ors []string
	if query.FirstName != nil {
		ors = append(ors, sb.ILike("first_name", *query.FirstName+"%"))
	}
	if query.LastName != nil {
		ors = append(ors, sb.ILike("last_name", *query.LastName+"%"))
	}
	if query.ResidencePin != nil {
		ors = append(ors, sb.Equal("residence_pin", *query.ResidencePin))
	}
	if query.BirthDate != nil {
		ors = append(ors, sb.Between("birth_date",
			query.BirthDate.AddDate(-2, 0, 0), query.BirthDate.AddDate(2, 0, 0)))
	}
	if query.ResidenceCity != nil {
		ors = append(ors, sb.ILike("residence_city", *query.ResidenceCity))
	}
	if query.Gender != nil {
		ors = append(ors, sb.Equal("gender", string(*query.Gender)))
	}
	if query.Occupation != nil {
		ors = append(ors, sb.ILike("occupation", "%"+*query.Occupation+"%"))
	}
	if query.Living != nil {
		ors = append(ors, sb.Equal("living", *query.Living))
	}
	if query.DeathDate != nil {
		year := query.DeathDate.UTC().Year()
		ors = append(ors, sb.Between("death_date",
			time.Date(year-2, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year+2, time.December, 31, 23, 59, 59, 0, time.UTC)))
	}
	if len(ors) == 0 {
		return "", nil, httperror.NewHTTPError(http.StatusBadRequest, "at least one searchable criterion is required")
	}
	sb.Where(sb.Or(ors...))
	sb.Limit(500)

	sql, args := sb.Build()
	return sql, args, nil
}

// FindCandidates returns the SQL prefilter used by the match scorer:
// any person touching at least one of the query criteria.
func (r *Repository) FindCandidates(ctx context.Context, query models.MatchQuery) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindCandidates")
	defer span.End()

	sql, args, err := candidateQuery(query)
	if err != nil {
		return nil, err
	}

	var persons []models.Person
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &persons, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search persons")
	}
	return persons, nil
}

// Search does a paginated name-substring lookup over first and last
// names. Page size is fixed at 6 to mirror the match result paging.
func (r *Repository) Search(ctx context.Context, name string, page int) ([]models.Person, int, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Search")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return nil, 0, httperror.NewHTTPError(http.StatusBadRequest, "a search name is required")
	}
	if page < 1 {
		page = 1
	}
	pattern := "%" + strings.TrimSpace(name) + "%"

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("persons")
	cb.Where(cb.Or(cb.ILike("first_name", pattern), cb.ILike("last_name", pattern)))

	countQuery, countArgs := cb.Build()
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count person search results")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search persons")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")
	sb.Where(sb.Or(sb.ILike("first_name", pattern), sb.ILike("last_name", pattern)))
	sb.OrderBy("last_name", "first_name").Asc()
	sb.Limit(searchPageSize)
	sb.Offset((page - 1) * searchPageSize)

	sql, args := sb.Build()
	var persons []models.Person
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &persons, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search persons")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search persons")
	}
	return persons, total, nil
}

func joinColumns() string {
	out := columns[0]
	for _, c := range columns[1:] {
		out += ", " + c
	}
	return out
}
