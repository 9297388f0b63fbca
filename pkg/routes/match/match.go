package match

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/tester620/server-ancestropedia-v1/pkg/context"
	"github.com/tester620/server-ancestropedia-v1/pkg/matching"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

var validate = validator.New()

// Register registers match routes
func Register(g *echo.Group) {
	g.POST("", Search)
	g.POST("/candidates", Candidates)
}

type candidatesRequest struct {
	RelationType models.RelationType `json:"relation_type" validate:"required,oneof=father mother spouse"`
	Query        models.MatchQuery   `json:"query"`
}

// Candidates lists scored persons suitable for a relation slot. Parent
// slots force the gender criterion the role implies.
func Candidates(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req candidatesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	switch req.RelationType {
	case models.RelationTypeFather:
		gender := models.GenderMale
		req.Query.Gender = &gender
	case models.RelationTypeMother:
		gender := models.GenderFemale
		req.Query.Gender = &gender
	}

	ctx, service, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match service")
	}

	result, err := service.Match(ctx, req.Query)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Search scores stored persons against a partial biographical
// description and returns the best matches first.
func Search(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var query models.MatchQuery
	if err := c.Bind(&query); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(query); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match service")
	}

	result, err := service.Match(ctx, query)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
