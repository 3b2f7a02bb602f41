package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codegouvfr/sill-web/internal/adapter/metrics"
	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/catalog"
	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/platform/config"
	"github.com/codegouvfr/sill-web/web"
)

type appService interface {
	Session(ctx context.Context, sessionID string) (*app.Session, error)
	Drop(sessionID, reason string)
	APIVersion() string
	SessionCount() int
	Catalog(ctx context.Context, sess *app.Session, q catalog.Query) (*catalog.Page, error)
	RequireLogin(ctx context.Context, sess *app.Session, page app.Page) error
	Login(ctx context.Context, sess *app.Session, requiresAuth bool) error
	Logout(ctx context.Context, sess *app.Session) error
	Account(ctx context.Context, sess *app.Session, lang domain.Language) (*app.AccountView, error)
	UpdateProfileField(ctx context.Context, sess *app.Session, field, value string) error
}

// LoginCallback finishes a login started by a session identity.
// keycloak.Callback implements it.
type LoginCallback interface {
	CompleteLogin(ctx context.Context, sessionID, state, code string) (string, error)
	CancelLogin(ctx context.Context, sessionID, state string) (string, error)
}

type Options struct {
	// Callback is nil when no identity provider redirects back to the app.
	Callback     LoginCallback
	HealthChecks []HealthCheck
	// Registry is served at /metrics; nil disables metrics.
	Registry *prometheus.Registry
	Clock    clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app      appService
	callback LoginCallback

	templates    *template.Template
	sessionStore *sessions.CookieStore

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, svc appService, opts Options) (*Server, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          svc,
		callback:     opts.Callback,
		templates:    templates,
		sessionStore: newSessionStore(cfg),
		registry:     opts.Registry,
		healthChecks: opts.HealthChecks,
		clock:        clock,
		startTime:    clock.Now(),
	}
	if opts.Registry != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(opts.Registry)
	}

	srv.registerRoutes()

	return srv, nil
}

func parseTemplates() (*template.Template, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return templates, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mostly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) renderTemplate(c echo.Context, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.ErrorContext(c.Request().Context(), "Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(status, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func newSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
