package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_RedirectsToCatalog(t *testing.T) {
	env := newTestEnv(t)

	rec := env.browser(t).get("/")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/catalog", rec.Header().Get("Location"))
}

func TestCatalog_ListsSoftwares(t *testing.T) {
	env := newTestEnv(t)

	rec := env.browser(t).get("/catalog")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "LibreOffice")
	assert.Contains(t, body, "Thunderbird")
	assert.Contains(t, body, "6 logiciels")
	assert.Contains(t, body, `aria-current="page"`)
}

func TestCatalog_Search(t *testing.T) {
	env := newTestEnv(t)

	rec := env.browser(t).get("/catalog?search=office")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "OnlyOffice")
	assert.NotContains(t, body, "Firefox")
	// unknown alike reference of LibreOffice
	assert.Contains(t, body, "Microsoft Office")
	assert.Contains(t, body, "/catalog?search=office&amp;softwareName=LibreOffice")
}

func TestCatalog_SearchIsCanonicalized(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		location string
	}{
		{"blank search dropped", "/catalog?search=%20%20", "/catalog"},
		{"empty search dropped", "/catalog?search=&count=48", "/catalog?count=48"},
		{"surrounding spaces trimmed", "/catalog?search=%20vlc%20&softwareName=VLC", "/catalog?search=vlc&softwareName=VLC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.browser(t).get(tt.target)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}
}

func TestCatalog_SoftwareDetails(t *testing.T) {
	env := newTestEnv(t)

	rec := env.browser(t).get("/catalog?search=office&softwareName=OnlyOffice")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "software-details")
	assert.Contains(t, body, "AGPL-3.0")
	assert.Contains(t, body, `href="/catalog?search=office"`)
	assert.Contains(t, body, "référent(s)")
}

func TestCatalog_SoftwareDetailsInEnglish(t *testing.T) {
	env := newTestEnv(t)

	rec := env.browser(t).get("/catalog?softwareName=OnlyOffice&lang=en")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "referent(s)")
	assert.NotContains(t, body, "référent(s)")
}

func TestCatalog_UnknownSoftware(t *testing.T) {
	env := newTestEnv(t)

	rec := env.browser(t).get("/catalog?softwareName=Emacs")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404")
}

func TestCatalog_Language(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	rec := b.get("/catalog?lang=en")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "6 softwares")
	require.Contains(t, b.cookies, "sill_lang")
	assert.Equal(t, "en", b.cookies["sill_lang"].Value)

	// the cookie sticks for the next visit
	rec = b.get("/catalog")
	assert.Contains(t, rec.Body.String(), `<html lang="en">`)
}

func TestCatalog_AcceptLanguage(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	req := newGet("/catalog")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	rec := b.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Login")
	assert.NotContains(t, b.cookies, "sill_lang")
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	rec := b.get("/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cette page n'existe pas.")

	b.accept = "application/json"
	rec = b.get("/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"not_found"`)
}

func TestCatalog_EndedLoginFallsBackToAnonymous(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login()

	rec := b.get("/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vous êtes référent")

	env.directory.EndSSOSessions()

	rec = b.get("/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "LibreOffice")
	assert.NotContains(t, body, "vous êtes référent")
	assert.Contains(t, body, "Se connecter")
	assert.Equal(t, 0, env.svc.SessionCount())

	// the rebuilt session stays anonymous
	rec = b.get("/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Se connecter")
}
