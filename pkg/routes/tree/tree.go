package tree

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	personrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/person"
	treerepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/tree"
	ctxmiddleware "github.com/tester620/server-ancestropedia-v1/pkg/context"
	"github.com/tester620/server-ancestropedia-v1/pkg/ledger"
	"github.com/tester620/server-ancestropedia-v1/pkg/matching"
	"github.com/tester620/server-ancestropedia-v1/pkg/models"
	"github.com/tester620/server-ancestropedia-v1/pkg/traversal"
)

var validate = validator.New()

// Register registers tree routes
func Register(g *echo.Group) {
	g.POST("", Create)
	g.GET("", List)
	g.GET("/recommended", Recommended)
	g.PUT("/:id", Rename)
	g.POST("/:id/members", AddMember)
	g.DELETE("/:id/members/:memberId", RemoveMember)
	g.DELETE("/:id", Delete)
	g.GET("/:rootId/materialized", Materialized)
	g.GET("/:rootId/relations", Relations)
}

// authorizeRoot checks that the caller may view the tree rooted at
// rootID: their own tree, a tree they created, or one they unlocked.
func authorizeRoot(ctx context.Context, userID, rootID string) (context.Context, error) {
	if rootID == userID {
		return ctx, nil
	}

	ctx, people, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return ctx, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	root, err := people.Get(ctx, rootID)
	if err != nil {
		return ctx, err
	}
	if root.CreatorID == userID {
		return ctx, nil
	}

	ctx, access, err := ectoinject.GetContext[*ledger.Ledger](ctx)
	if err != nil {
		return ctx, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get access ledger")
	}

	ok, err := access.HasAccess(ctx, userID, rootID)
	if err != nil {
		return ctx, err
	}
	if !ok {
		return ctx, httperror.NewHTTPError(http.StatusForbidden, "tree is locked; unlock it to view")
	}

	return ctx, nil
}

// Materialized returns the connected family graph reachable from the root
func Materialized(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	rootID := c.Param("rootId")

	ctx, err := authorizeRoot(ctx, userID, rootID)
	if err != nil {
		return err
	}

	ctx, materializer, err := ectoinject.GetContext[*traversal.Materializer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get materializer")
	}

	tree, err := materializer.Materialize(ctx, rootID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tree)
}

// Relations returns the tree as an explicit edge list
func Relations(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	rootID := c.Param("rootId")

	ctx, err := authorizeRoot(ctx, userID, rootID)
	if err != nil {
		return err
	}

	ctx, materializer, err := ectoinject.GetContext[*traversal.Materializer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get materializer")
	}

	relations, err := materializer.Relations(ctx, rootID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": relations, "total_count": len(relations)})
}

// Create creates a named tree collection owned by the caller
func Create(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.CreateTreeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*treerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Create(ctx, &models.Tree{
		Name:    req.Name,
		OwnerID: userID,
		Members: []string{userID},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// List returns the caller's tree collections
func List(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*treerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.ListForOwner(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": items, "total_count": len(items)})
}

// AddMember adds a person to a tree collection
func AddMember(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	treeID := c.Param("id")

	var req models.AddTreeMemberRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*treerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	existing, err := repo.Get(ctx, treeID)
	if err != nil {
		return err
	}
	if existing.OwnerID != userID {
		return httperror.NewHTTPError(http.StatusForbidden, "only the tree owner can add members")
	}

	if err := repo.AddMember(ctx, treeID, req.MemberID); err != nil {
		return err
	}

	result, err := repo.Get(ctx, treeID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Rename changes the display name of a tree collection
func Rename(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	treeID := c.Param("id")

	var req models.RenameTreeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*treerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Rename(ctx, treeID, userID, req.Name); err != nil {
		return err
	}

	result, err := repo.Get(ctx, treeID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// RemoveMember drops a person from a tree collection. A member that is
// still linked into the family graph is only removed when force=true;
// otherwise the live relationships come back as a 409 so the caller can
// confirm.
func RemoveMember(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	treeID := c.Param("id")
	memberID := c.Param("memberId")
	force := c.QueryParam("force") == "true"

	ctx, repo, err := ectoinject.GetContext[*treerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	existing, err := repo.Get(ctx, treeID)
	if err != nil {
		return err
	}
	if existing.OwnerID != userID {
		return httperror.NewHTTPError(http.StatusForbidden, "only the tree owner can remove members")
	}

	if !force {
		warnings, err := memberWarnings(ctx, memberID)
		if err != nil {
			return err
		}
		if len(warnings) > 0 {
			return c.JSON(http.StatusConflict, map[string]any{
				"message":  "member still has relationships in the family graph; retry with force=true to remove anyway",
				"warnings": warnings,
			})
		}
	}

	if err := repo.RemoveMember(ctx, treeID, memberID); err != nil {
		return err
	}

	if ctx, materializer, err := ectoinject.GetContext[*traversal.Materializer](ctx); err == nil {
		materializer.Invalidate(ctx, memberID)
	}

	result, err := repo.Get(ctx, treeID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// memberWarnings describes the member's live edges in the family graph.
// A missing person record simply yields no warnings.
func memberWarnings(ctx context.Context, memberID string) ([]string, error) {
	ctx, people, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	person, err := people.GetMaybe(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, nil
	}

	var warnings []string
	if person.FatherID != nil {
		warnings = append(warnings, "linked to a father")
	}
	if person.MotherID != nil {
		warnings = append(warnings, "linked to a mother")
	}
	if len(person.Children) > 0 {
		warnings = append(warnings, fmt.Sprintf("has %d linked children", len(person.Children)))
	}
	if len(person.Spouses.Data) > 0 {
		warnings = append(warnings, fmt.Sprintf("has %d spouse links", len(person.Spouses.Data)))
	}
	return warnings, nil
}

// Recommended suggests likely-related trees by matching the caller's
// own record against the rest of the graph.
func Recommended(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	ctx, people, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	self, err := people.Get(ctx, userID)
	if err != nil {
		return err
	}

	ctx, matcher, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match service")
	}

	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}

	result, err := matcher.Match(ctx, models.MatchQuery{
		LastName:      &self.LastName,
		ResidenceCity: self.ResidenceCity,
		Page:          page,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Delete removes a tree collection owned by the caller
func Delete(c echo.Context) error {
	ctx := c.Request().Context()

	userID := ctxmiddleware.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	treeID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*treerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Delete(ctx, treeID, userID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
