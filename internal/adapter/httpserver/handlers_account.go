package httpserver

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/domain"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
)

// formFields maps the form routes under /account to profile fields.
var formFields = map[string]domain.FieldName{
	"agency-name": domain.FieldAgencyName,
	"email":       domain.FieldEmail,
}

type updateFieldRequest struct {
	Value string `json:"value" form:"value"`
}

func (s *Server) registerAccountRoutes(page []echo.MiddlewareFunc, rateLimiter echo.MiddlewareFunc) {
	s.echo.GET(app.PageAccount.Path, s.handleAccount, slices.Concat(page, []echo.MiddlewareFunc{s.requirePage(app.PageAccount)})...)
	for path, field := range formFields {
		s.echo.POST(app.PageAccount.Path+"/"+path, s.handleUpdateFieldForm(field), slices.Concat([]echo.MiddlewareFunc{rateLimiter}, page)...)
	}

	s.echo.GET("/api/account", s.handleAPIAccount, page...)
	s.echo.POST("/api/account/:field", s.handleAPIUpdateField, slices.Concat([]echo.MiddlewareFunc{rateLimiter}, page)...)
}

// requirePage starts a login when an anonymous session visits a page that
// needs one.
func (s *Server) requirePage(p app.Page) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := s.app.RequireLogin(c.Request().Context(), currentSession(c), p); err != nil {
				return err
			}
			return next(c)
		}
	}
}

func (s *Server) handleAccount(c echo.Context) error {
	view, err := s.app.Account(c.Request().Context(), currentSession(c), language(c))
	if err != nil {
		return err
	}
	return s.renderPage(c, app.PageAccount, "account.html", view)
}

func (s *Server) handleUpdateFieldForm(field domain.FieldName) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.app.UpdateProfileField(c.Request().Context(), currentSession(c), string(field), c.FormValue("value")); err != nil {
			return err
		}
		if err := c.Redirect(http.StatusSeeOther, app.PageAccount.Path); err != nil {
			return fmt.Errorf("failed to redirect: %w", err)
		}
		return nil
	}
}

func (s *Server) handleAPIAccount(c echo.Context) error {
	sess := currentSession(c)
	if !sess.Identity.IsLoggedIn() {
		return apperrors.UnauthorizedError("account requires an authenticated session")
	}

	view, err := s.app.Account(c.Request().Context(), sess, language(c))
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to write account response: %w", err)
	}
	return nil
}

func (s *Server) handleAPIUpdateField(c echo.Context) error {
	var req updateFieldRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	ctx := c.Request().Context()
	sess := currentSession(c)
	if err := s.app.UpdateProfileField(ctx, sess, c.Param("field"), req.Value); err != nil {
		return err
	}

	sess, err := s.app.Session(ctx, sess.ID)
	if err != nil {
		return apperrors.ExternalError("failed to reload session", err)
	}
	view, err := s.app.Account(ctx, sess, language(c))
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to write account response: %w", err)
	}
	return nil
}
