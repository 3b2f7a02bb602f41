package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/catalog"
	"github.com/codegouvfr/sill-web/internal/domain"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
)

func (s *Server) registerCatalogRoutes(page []echo.MiddlewareFunc) {
	s.echo.GET(app.PageCatalog.Path, s.handleCatalog, page...)
}

func (s *Server) handleCatalog(c echo.Context) error {
	q := catalog.ParseQuery(c.QueryParams())

	// The search in the URL is kept canonical: trimmed, and dropped when empty.
	if raw, ok := c.QueryParams()["search"]; ok && len(raw) > 0 && (raw[0] == "" || raw[0] != strings.TrimSpace(raw[0])) {
		if err := c.Redirect(http.StatusSeeOther, q.Link()); err != nil {
			return fmt.Errorf("failed to redirect: %w", err)
		}
		return nil
	}

	sess := currentSession(c)

	page, err := s.app.Catalog(c.Request().Context(), sess, q)
	if errors.Is(err, domain.ErrSoftwareNotFound) {
		return apperrors.NotFoundError("software not found").WithField("software", q.SoftwareName)
	}
	if err != nil {
		return apperrors.ExternalError("failed to load the catalog", err)
	}

	return s.renderPage(c, app.PageCatalog, "catalog.html", page)
}
