package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegouvfr/sill-web/internal/domain"
)

func TestLogin_RedirectsBackToReturnTo(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	rec := b.get("/auth/login?returnTo=%2Fcatalog%3Fsearch%3Dgimp")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/catalog?search=gimp", rec.Header().Get("Location"))
	// the pre-login session was dropped
	assert.Equal(t, 0, env.svc.SessionCount())
}

func TestLogin_RejectsForeignReturnTo(t *testing.T) {
	for _, returnTo := range []string{"https://evil.example", "//evil.example", "/\\evil.example", ""} {
		t.Run(returnTo, func(t *testing.T) {
			env := newTestEnv(t)
			b := env.browser(t)

			rec := b.get("/auth/login?returnTo=" + url.QueryEscape(returnTo))

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/", rec.Header().Get("Location"))
		})
	}
}

func TestLogin_AlreadyLoggedIn(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login()

	rec := b.get("/auth/login?returnTo=%2Faccount")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))
}

func TestLoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)

	rec := b.get("/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Se connecter")
	assert.NotContains(t, rec.Body.String(), "card referent")

	b.login()

	rec = b.get("/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Se déconnecter")
	assert.Contains(t, rec.Body.String(), "card referent")

	rec = b.postForm("/auth/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = b.get("/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Se connecter")
}

func TestLogout_RequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.login()
	b.get("/catalog")
	delete(b.cookies, "csrf_token")

	rec := b.postForm("/auth/logout", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout_Anonymous(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.get("/catalog")

	rec := b.postForm("/auth/logout", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallback_WithoutIdentityProvider(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t)
	b.accept = ""

	rec := b.get("/auth/callback?state=s&code=c")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallback_CompletesLogin(t *testing.T) {
	var gotSession, gotState, gotCode string
	cb := &mockCallback{
		completeFn: func(_ context.Context, sessionID, state, code string) (string, error) {
			gotSession, gotState, gotCode = sessionID, state, code
			return "/account", nil
		},
	}
	env := newTestEnv(t, withCallback(cb))
	b := env.browser(t)

	b.get("/catalog")
	require.Equal(t, 1, env.svc.SessionCount())

	rec := b.get("/auth/callback?state=abc&code=xyz")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))
	assert.NotEmpty(t, gotSession)
	assert.Equal(t, "abc", gotState)
	assert.Equal(t, "xyz", gotCode)
	assert.Equal(t, 0, env.svc.SessionCount())
}

func TestCallback_CancelledLogin(t *testing.T) {
	cb := &mockCallback{
		cancelFn: func(_ context.Context, _, state string) (string, error) {
			assert.Equal(t, "abc", state)
			return "/", nil
		},
	}
	env := newTestEnv(t, withCallback(cb))
	b := env.browser(t)

	rec := b.get("/auth/callback?state=abc&error=access_denied")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallback_Errors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		returnTo   string
		wantStatus int
		wantLoc    string
	}{
		{name: "missing code", query: "state=abc", wantStatus: http.StatusBadRequest},
		{name: "invalid state", query: "state=abc&code=xyz", err: domain.ErrInvalidLoginState, wantStatus: http.StatusBadRequest},
		{name: "exchange failure", query: "state=abc&code=xyz", err: errors.New("token endpoint down"), wantStatus: http.StatusBadGateway},
		{name: "foreign return target", query: "state=abc&code=xyz", returnTo: "https://evil.example", wantStatus: http.StatusFound, wantLoc: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := &mockCallback{
				completeFn: func(context.Context, string, string, string) (string, error) {
					return tt.returnTo, tt.err
				},
			}
			env := newTestEnv(t, withCallback(cb))
			b := env.browser(t)
			b.accept = ""

			rec := b.get("/auth/callback?" + tt.query)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			}
		})
	}
}
