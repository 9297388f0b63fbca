package person

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	personrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/person"
	"github.com/tester620/server-ancestropedia-v1/internal/repositories/updaterequest"
	"github.com/tester620/server-ancestropedia-v1/pkg/builder"
	ctxmiddleware "github.com/tester620/server-ancestropedia-v1/pkg/context"
	"github.com/tester620/server-ancestropedia-v1/pkg/events"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/storage"
	"github.com/tester620/server-ancestropedia-v1/pkg/traversal"
)

var validate = validator.New()

// Register registers person routes
func Register(g *echo.Group) {
	g.POST("", Build)
	g.GET("", Search)
	g.POST("/events", Events)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
	g.DELETE("/:id", Delete)
	g.GET("/:id/update-requests", ListUpdateRequests)
}

// RegisterUpdateRequests registers update request resolution routes
func RegisterUpdateRequests(g *echo.Group) {
	g.POST("/:id/resolve", Resolve)
}

// Build creates or extends the caller's family graph in one transaction.
// The whole request commits or none of it does.
func Build(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.BuildRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*builder.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get build engine")
	}

	self, err := engine.Build(ctx, userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, self)
}

// Search finds persons by name substring, six to a page
func Search(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	name := c.QueryParam("name")
	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, total, err := repo.Search(ctx, name, page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.PersonListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   6,
	})
}

// Get returns a single person by id
func Get(c echo.Context) error {
	ctx := c.Request().Context()

	personID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Get(ctx, personID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

type updatePayload struct {
	models.UpdatePersonRequest
	Proof *string `json:"proof,omitempty"`
}

// Update edits a person's biographical fields. The record's creator (or
// the person themselves) edits directly; anyone else raises an update
// request that the creator reviews.
func Update(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	personID := c.Param("id")

	var payload updatePayload
	if err := c.Bind(&payload); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(payload.UpdatePersonRequest); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	person, err := repo.Get(ctx, personID)
	if err != nil {
		return err
	}

	if person.ID != userID && person.CreatorID != userID {
		return raiseUpdateRequest(c, ctx, userID, person, payload)
	}

	if err := offloadImage(ctx, person.ID, &payload.UpdatePersonRequest); err != nil {
		return err
	}

	if err := applyUpdate(person, payload.UpdatePersonRequest); err != nil {
		return err
	}
	person.EditedBy = &userID

	if err := repo.Update(ctx, person); err != nil {
		return err
	}

	finishUpdate(ctx, person)

	return c.JSON(http.StatusOK, person)
}

// Delete removes a person record the caller created. Relationship
// pointers on linked records are left to the build engine's merge and
// repair paths; cached trees touching the person are invalidated here.
func Delete(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	personID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	person, err := repo.Get(ctx, personID)
	if err != nil {
		return err
	}

	if person.ID != userID && person.CreatorID != userID {
		return httperror.NewHTTPError(http.StatusForbidden, "only the record's creator can delete it")
	}

	if err := repo.Delete(ctx, personID); err != nil {
		return err
	}

	finishDelete(ctx, person)

	return c.NoContent(http.StatusNoContent)
}

type eventsRequest struct {
	PersonIDs []string `json:"person_ids" validate:"required,min=1"`
}

type calendarEvent struct {
	Person models.Person `json:"person"`
	Type   string        `json:"type"`
	Date   time.Time     `json:"date"`
}

// Events returns today's birthdays and death anniversaries among the
// given persons.
func Events(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req eventsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	people, err := repo.GetByIDs(ctx, req.PersonIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	items := []calendarEvent{}
	for _, person := range people {
		if person.Living && sameMonthDay(person.BirthDate, now) {
			items = append(items, calendarEvent{Person: person, Type: "birthday", Date: *person.BirthDate})
		}
		if sameMonthDay(person.DeathDate, now) {
			items = append(items, calendarEvent{Person: person, Type: "death_anniversary", Date: *person.DeathDate})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"items": items, "total_count": len(items)})
}

func sameMonthDay(date *time.Time, now time.Time) bool {
	return date != nil && date.Month() == now.Month() && date.Day() == now.Day()
}

// raiseUpdateRequest records a proposed edit for the creator to review.
// Only the fields that actually differ from the current record are
// stored, previous and proposed values side by side.
func raiseUpdateRequest(c echo.Context, ctx context.Context, userID string, person *models.Person, payload updatePayload) error {
	prevFields, nextFields := diffUpdate(person, payload.UpdatePersonRequest)
	if len(nextFields) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "edit proposes no changes")
	}

	prev, err := json.Marshal(prevFields)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to snapshot person")
	}
	updated, err := json.Marshal(nextFields)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode proposed edit")
	}

	ctx, requests, err := ectoinject.GetContext[*updaterequest.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := requests.Create(ctx, &models.UpdateRequest{
		UserID:      userID,
		PersonID:    person.ID,
		PrevData:    prev,
		UpdatedData: updated,
		Proof:       payload.Proof,
		Status:      models.UpdateRequestStatusPending,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, result)
}

// ListUpdateRequests returns pending update requests for a person. Only
// the record's creator (or the person themselves) can review them.
func ListUpdateRequests(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	personID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	person, err := repo.Get(ctx, personID)
	if err != nil {
		return err
	}

	if person.ID != userID && person.CreatorID != userID {
		return httperror.NewHTTPError(http.StatusForbidden, "only the record's creator can review update requests")
	}

	ctx, requests, err := ectoinject.GetContext[*updaterequest.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := requests.ListForPerson(ctx, personID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": items, "total_count": len(items)})
}

// Resolve approves or rejects a pending update request. Approval applies
// the proposed fields to the person and records the proposer as editor.
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	requestID := c.Param("id")

	var req models.ResolveUpdateRequestRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, requests, err := ectoinject.GetContext[*updaterequest.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	pending, err := requests.Get(ctx, requestID)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	person, err := repo.Get(ctx, pending.PersonID)
	if err != nil {
		return err
	}

	if person.ID != userID && person.CreatorID != userID {
		return httperror.NewHTTPError(http.StatusForbidden, "only the record's creator can resolve update requests")
	}

	if !req.Approve {
		if err := requests.SetStatus(ctx, requestID, models.UpdateRequestStatusRejected); err != nil {
			return err
		}
		pending.Status = models.UpdateRequestStatusRejected
		return c.JSON(http.StatusOK, pending)
	}

	var update models.UpdatePersonRequest
	if err := json.Unmarshal(pending.UpdatedData, &update); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "update request payload is not a valid person edit")
	}

	if err := offloadImage(ctx, person.ID, &update); err != nil {
		return err
	}

	if err := applyUpdate(person, update); err != nil {
		return err
	}
	person.EditedBy = &pending.UserID

	if err := repo.Update(ctx, person); err != nil {
		return err
	}

	if err := requests.SetStatus(ctx, requestID, models.UpdateRequestStatusApproved); err != nil {
		return err
	}

	finishUpdate(ctx, person)

	pending.Status = models.UpdateRequestStatusApproved
	return c.JSON(http.StatusOK, pending)
}

// diffUpdate compares the proposed edit against the current record and
// returns the changed fields keyed by their JSON names: previous values
// in one map, proposed values in the other. The typed request is the
// field allowlist; unchanged fields are dropped.
func diffUpdate(person *models.Person, req models.UpdatePersonRequest) (map[string]any, map[string]any) {
	prev := map[string]any{}
	next := map[string]any{}

	record := func(key string, changed bool, prevVal, nextVal any) {
		if !changed {
			return
		}
		prev[key] = prevVal
		next[key] = nextVal
	}

	if req.FirstName != nil {
		record("first_name", *req.FirstName != person.FirstName, person.FirstName, *req.FirstName)
	}
	if req.LastName != nil {
		record("last_name", *req.LastName != person.LastName, person.LastName, *req.LastName)
	}
	if req.Gender != nil {
		record("gender", *req.Gender != person.Gender, person.Gender, *req.Gender)
	}
	if req.Living != nil {
		record("living", *req.Living != person.Living, person.Living, *req.Living)
	}
	if req.BirthDate != nil {
		record("birth_date", person.BirthDate == nil || !person.BirthDate.Equal(*req.BirthDate), person.BirthDate, *req.BirthDate)
	}
	if req.DeathDate != nil {
		record("death_date", person.DeathDate == nil || !person.DeathDate.Equal(*req.DeathDate), person.DeathDate, *req.DeathDate)
	}

	strField := func(key string, proposed, current *string) {
		if proposed == nil {
			return
		}
		record(key, current == nil || *current != *proposed, current, *proposed)
	}
	strField("birth_city", req.BirthCity, person.BirthCity)
	strField("birth_state", req.BirthState, person.BirthState)
	strField("birth_country", req.BirthCountry, person.BirthCountry)
	strField("birth_pin", req.BirthPin, person.BirthPin)
	strField("residence_city", req.ResidenceCity, person.ResidenceCity)
	strField("residence_state", req.ResidenceState, person.ResidenceState)
	strField("residence_country", req.ResidenceCountry, person.ResidenceCountry)
	strField("residence_pin", req.ResidencePin, person.ResidencePin)
	strField("occupation", req.Occupation, person.Occupation)
	strField("profile_image", req.ProfileImage, person.ProfileImage)

	return prev, next
}

// applyUpdate merges the non-nil fields of the edit onto the person
func applyUpdate(person *models.Person, req models.UpdatePersonRequest) error {
	if req.FirstName != nil {
		person.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		person.LastName = *req.LastName
	}
	if req.Gender != nil {
		person.Gender = *req.Gender
	}
	if req.Living != nil {
		person.Living = *req.Living
	}
	if req.BirthDate != nil {
		person.BirthDate = req.BirthDate
	}
	if req.DeathDate != nil {
		person.DeathDate = req.DeathDate
	}
	if req.BirthCity != nil {
		person.BirthCity = req.BirthCity
	}
	if req.BirthState != nil {
		person.BirthState = req.BirthState
	}
	if req.BirthCountry != nil {
		person.BirthCountry = req.BirthCountry
	}
	if req.BirthPin != nil {
		person.BirthPin = req.BirthPin
	}
	if req.ResidenceCity != nil {
		person.ResidenceCity = req.ResidenceCity
	}
	if req.ResidenceState != nil {
		person.ResidenceState = req.ResidenceState
	}
	if req.ResidenceCountry != nil {
		person.ResidenceCountry = req.ResidenceCountry
	}
	if req.ResidencePin != nil {
		person.ResidencePin = req.ResidencePin
	}
	if req.Occupation != nil {
		person.Occupation = req.Occupation
	}
	if req.ProfileImage != nil {
		person.ProfileImage = req.ProfileImage
	}

	// Marking someone living again retires any recorded death date,
	// unless the same edit tries to set both at once.
	if req.Living != nil && *req.Living {
		if req.DeathDate != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "a living person cannot have a death date")
		}
		person.DeathDate = nil
	}

	if person.Living && person.DeathDate != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "a living person cannot have a death date")
	}

	return nil
}

// offloadImage replaces an inline data-URI profile image with a durable
// storage URL. Inline images are rejected when no uploader is configured.
func offloadImage(ctx context.Context, personID string, req *models.UpdatePersonRequest) error {
	if req.ProfileImage == nil || !storage.IsInlineImage(*req.ProfileImage) {
		return nil
	}

	ctx, uploader, err := ectoinject.GetContext[*storage.HTTPUploader](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "inline images are not supported")
	}

	data, err := storage.DecodeInlineImage(*req.ProfileImage)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "profile image data is malformed")
	}

	result, err := uploader.Upload(ctx, data, personID)
	if err != nil {
		return err
	}

	req.ProfileImage = &result.URL
	return nil
}

// finishUpdate invalidates cached trees that include the person and
// emits the updated event. Both are best-effort.
func finishUpdate(ctx context.Context, person *models.Person) {
	touched := []string{person.ID}
	if person.FatherID != nil {
		touched = append(touched, *person.FatherID)
	}
	if person.MotherID != nil {
		touched = append(touched, *person.MotherID)
	}
	touched = append(touched, person.Children...)
	for _, link := range person.Spouses.Data {
		touched = append(touched, link.SpouseID)
	}

	if ctx, materializer, err := ectoinject.GetContext[*traversal.Materializer](ctx); err == nil {
		materializer.Invalidate(ctx, touched...)
	}
	if ctx, notifier, err := ectoinject.GetContext[*events.Notifier](ctx); err == nil {
		notifier.EmitPersonUpdated(ctx, person)
	}
}

// finishDelete invalidates cached trees that included the person and
// emits the deleted event. Both are best-effort.
func finishDelete(ctx context.Context, person *models.Person) {
	touched := []string{person.ID}
	if person.FatherID != nil {
		touched = append(touched, *person.FatherID)
	}
	if person.MotherID != nil {
		touched = append(touched, *person.MotherID)
	}
	touched = append(touched, person.Children...)
	for _, link := range person.Spouses.Data {
		touched = append(touched, link.SpouseID)
	}

	if ctx, materializer, err := ectoinject.GetContext[*traversal.Materializer](ctx); err == nil {
		materializer.Invalidate(ctx, touched...)
	}
	if ctx, notifier, err := ectoinject.GetContext[*events.Notifier](ctx); err == nil {
		notifier.EmitPersonDeleted(ctx, person)
	}
}
