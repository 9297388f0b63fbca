package user

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	userrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/user"
	ctxmiddleware "github.com/tester620/server-ancestropedia-v1/pkg/context"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

// initialAllotment is the token grant every new account starts with.
const initialAllotment = 50

var validate = validator.New()

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type profileResponse struct {
	models.User
	SpendableTokens int `json:"spendable_tokens"`
}

// Register registers user routes
func Register(g *echo.Group) {
	g.POST("", Create)
	g.GET("/me", Me)
}

// Create registers the caller's account record with its starting
// token allotment.
func Create(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*userrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Create(ctx, &models.User{
		ID:            userID,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		AllotedTokens: initialAllotment,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, profileResponse{User: *result, SpendableTokens: result.SpendableTokens()})
}

// Me returns the caller's account record and spendable balance
func Me(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*userrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Get(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profileResponse{User: *result, SpendableTokens: result.SpendableTokens()})
}
