package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/domain"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
)

const oauthTimeout = 10 * time.Second

func (s *Server) registerAuthRoutes(page []echo.MiddlewareFunc, rateLimiter echo.MiddlewareFunc) {
	withLimit := slices.Concat([]echo.MiddlewareFunc{rateLimiter}, page)
	s.echo.GET("/auth/login", s.handleLogin, withLimit...)
	s.echo.POST("/auth/logout", s.handleLogout, withLimit...)
	s.echo.GET("/auth/callback", s.handleCallback, rateLimiter)
}

// handleLogin is the header's login action: backing out of the identity
// provider comes back to the page the user was on.
func (s *Server) handleLogin(c echo.Context) error {
	returnTo := safeReturnTo(c.QueryParam("returnTo"))
	sess := currentSession(c)
	if sess.Identity.IsLoggedIn() {
		return c.Redirect(http.StatusFound, returnTo)
	}

	ctx := domain.WithCurrentPage(c.Request().Context(), returnTo)
	err := s.app.Login(ctx, sess, false)
	if _, ok := errors.AsType[*domain.Redirect](err); ok {
		return err
	}
	if errors.Is(err, app.ErrNoIdentityProvider) {
		return apperrors.NotFoundError("login is not available")
	}
	return apperrors.ExternalError("failed to start login", err)
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	sess := currentSession(c)
	if !sess.Identity.IsLoggedIn() {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	err := s.app.Logout(ctx, sess)
	if _, ok := errors.AsType[*domain.Redirect](err); ok {
		slog.InfoContext(ctx, "User logged out")
		return err
	}
	return apperrors.ExternalError("failed to log out", err)
}

// handleCallback is where the identity provider sends the browser back,
// with either an authorization code or an error when the user backed out.
func (s *Server) handleCallback(c echo.Context) error {
	if s.callback == nil {
		return apperrors.NotFoundError("page not found")
	}

	sid, err := s.sessionID(c)
	if err != nil {
		return apperrors.InternalError("failed to open browser session", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	state := c.QueryParam("state")
	var target string
	if providerErr := c.QueryParam("error"); providerErr != "" {
		slog.InfoContext(ctx, "Login cancelled", "reason", providerErr)
		target, err = s.callback.CancelLogin(ctx, sid, state)
	} else {
		code := c.QueryParam("code")
		if code == "" {
			return apperrors.ValidationError("missing code parameter")
		}
		target, err = s.callback.CompleteLogin(ctx, sid, state, code)
	}
	if errors.Is(err, domain.ErrInvalidLoginState) {
		return apperrors.ValidationError("invalid or expired login state")
	}
	if err != nil {
		return apperrors.ExternalError("failed to complete login", err)
	}

	// the next request rebuilds the session with the new token
	s.app.Drop(sid, "login")

	if err := c.Redirect(http.StatusFound, safeReturnTo(target)); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}
