package access

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/tester620/server-ancestropedia-v1/internal/repositories/treeaccess"
	ctxmiddleware "github.com/tester620/server-ancestropedia-v1/pkg/context"
	"github.com/tester620/server-ancestropedia-v1/pkg/ledger"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

var validate = validator.New()

// Register registers access routes
func Register(g *echo.Group) {
	g.POST("/unlock", Unlock)
	g.GET("", List)
}

// Unlock grants the caller viewing access to another person's tree,
// spending tokens for a new grant or renewing an expired one.
func Unlock(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.UnlockRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.PersonID == userID {
		return httperror.NewHTTPError(http.StatusBadRequest, "your own tree is always accessible")
	}

	ctx, l, err := ectoinject.GetContext[*ledger.Ledger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get access ledger")
	}

	result, err := l.Unlock(ctx, userID, req.PersonID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// List returns the caller's access grants
func List(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*treeaccess.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.ListForUser(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": items, "total_count": len(items)})
}
