package httpserver

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/domain"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
	"github.com/codegouvfr/sill-web/internal/platform/version"
)

var pageLabels = map[string]map[domain.Language]string{
	app.PageCatalog.Name: {domain.LanguageFrench: "Catalogue", domain.LanguageEnglish: "Catalog"},
	app.PageAccount.Name: {domain.LanguageFrench: "Mon compte", domain.LanguageEnglish: "My account"},
}

type navItem struct {
	Label  string
	Path   string
	Active bool
}

// pageData is the model shared by every page: the header and footer read
// it, Content is the page's own model.
type pageData struct {
	Lang       domain.Language
	Title      string
	Nav        []navItem
	LoggedIn   bool
	CSRFToken  string
	LoginLink  string
	WebVersion string
	APIVersion string
	Content    any
}

type errorContent struct {
	Status  int
	Message string
}

func (s *Server) pageData(c echo.Context, current app.Page, content any) pageData {
	lang := language(c)

	nav := make([]navItem, 0, len(app.Pages))
	for _, p := range app.Pages {
		nav = append(nav, navItem{Label: pageLabels[p.Name][lang], Path: p.Path, Active: p.Name == current.Name})
	}

	data := pageData{
		Lang:       lang,
		Title:      pageLabels[current.Name][lang],
		Nav:        nav,
		LoginLink:  "/auth/login?returnTo=" + url.QueryEscape(c.Request().URL.RequestURI()),
		WebVersion: version.Get().String(),
		APIVersion: s.app.APIVersion(),
		Content:    content,
	}
	if data.Title == "" {
		data.Title = "SILL"
	}
	if sess := currentSession(c); sess != nil {
		data.LoggedIn = sess.Identity.IsLoggedIn()
	}
	if token, ok := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string); ok {
		data.CSRFToken = token
	}
	return data
}

func (s *Server) renderPage(c echo.Context, current app.Page, name string, content any) error {
	return s.renderTemplate(c, http.StatusOK, name, s.pageData(c, current, content))
}

func (s *Server) renderErrorPage(c echo.Context, err *apperrors.Error) error {
	if err.Type == apperrors.TypeNotFound {
		return s.renderTemplate(c, http.StatusNotFound, "notfound.html", s.pageData(c, app.Page{}, nil))
	}
	content := errorContent{Status: err.HTTPStatus(), Message: err.Message}
	return s.renderTemplate(c, err.HTTPStatus(), "error.html", s.pageData(c, app.Page{}, content))
}

func (s *Server) handleNotFound(c echo.Context) error {
	return apperrors.NotFoundError("page not found").WithField("path", c.Request().URL.Path)
}
