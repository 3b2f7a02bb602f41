package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/platform/correlation"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
	"github.com/codegouvfr/sill-web/internal/platform/i18n"
)

// Browser session cookie
const (
	sessionName  = "sill-session"
	sessionKeyID = "sid"
)

// Echo context keys
const (
	ctxKeySession = "session"
	ctxKeyLang    = "lang"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.HeaderName))
		c.Response().Header().Set(correlation.HeaderName, id)
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func languageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		lang, persist := i18n.Resolve(c.Request())
		if persist {
			i18n.SetCookie(c.Response().Writer, lang)
		}
		c.Set(ctxKeyLang, lang)
		c.SetRequest(c.Request().WithContext(i18n.WithLanguage(c.Request().Context(), lang)))
		return next(c)
	}
}

func language(c echo.Context) domain.Language {
	if lang, ok := c.Get(ctxKeyLang).(domain.Language); ok {
		return lang
	}
	return i18n.Default()
}

// currentPageMiddleware records the page a login or logout should come
// back to. Form posts come back to the page that owns them.
func currentPageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		current := req.URL.RequestURI()
		if req.Method != http.MethodGet {
			current = "/"
			if p, ok := app.PageFor(req.URL.Path); ok {
				current = p.Path
			}
		}
		c.SetRequest(req.WithContext(domain.WithCurrentPage(req.Context(), current)))
		return next(c)
	}
}

// browserSession resolves the browser session id from the cookie, minting
// one on first visit, and loads the matching application session.
func (s *Server) browserSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sid, err := s.sessionID(c)
		if err != nil {
			return apperrors.InternalError("failed to open browser session", err)
		}

		ctx := correlation.WithSession(c.Request().Context(), sid)
		c.SetRequest(c.Request().WithContext(ctx))

		sess, err := s.app.Session(ctx, sid)
		if err != nil {
			return apperrors.ExternalError("failed to initialize session", err)
		}
		c.Set(ctxKeySession, sess)
		return next(c)
	}
}

func (s *Server) sessionID(c echo.Context) (string, error) {
	// A cookie that no longer decodes (rotated secret) yields a fresh session.
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.DebugContext(c.Request().Context(), "Discarding unreadable session cookie", "error", err)
	}

	if sid, ok := session.Values[sessionKeyID].(string); ok && sid != "" {
		return sid, nil
	}

	sid := uuid.NewString()
	session.Values[sessionKeyID] = sid
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return "", fmt.Errorf("failed to save session cookie: %w", err)
	}
	return sid, nil
}

func currentSession(c echo.Context) *app.Session {
	sess, _ := c.Get(ctxKeySession).(*app.Session)
	return sess
}

// errorPageRenderer writes a structured error as an HTML page.
type errorPageRenderer func(c echo.Context, err *apperrors.Error) error

// ErrorHandlingMiddleware follows *domain.Redirect errors and renders
// structured errors, as HTML for browsers when renderPage is set and as
// JSON otherwise.
func ErrorHandlingMiddleware(renderPage errorPageRenderer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if redirect, ok := errors.AsType[*domain.Redirect](err); ok {
				return followRedirect(c, redirect)
			}

			if _, ok := errors.AsType[*echo.HTTPError](err); ok {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if renderPage != nil && wantsHTML(c) {
				return renderPage(c, structuredErr)
			}
			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func followRedirect(c echo.Context, redirect *domain.Redirect) error {
	status := http.StatusFound
	if c.Request().Method != http.MethodGet && c.Request().Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	if err := c.Redirect(status, redirect.URL); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func wantsHTML(c echo.Context) bool {
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		return false
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeUnauthorized:
		slog.InfoContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Rate limit exceeded", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// safeReturnTo keeps only same-origin paths so callbacks cannot be turned
// into open redirects.
func safeReturnTo(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
