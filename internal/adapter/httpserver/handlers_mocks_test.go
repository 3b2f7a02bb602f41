package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/codegouvfr/sill-web/internal/adapter/keycloak"
	"github.com/codegouvfr/sill-web/internal/adapter/sillapi"
	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/catalog"
	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/platform/config"
)

// --- Mock implementations ---

type mockCallback struct {
	completeFn func(ctx context.Context, sessionID, state, code string) (string, error)
	cancelFn   func(ctx context.Context, sessionID, state string) (string, error)
}

func (m *mockCallback) CompleteLogin(ctx context.Context, sessionID, state, code string) (string, error) {
	return m.completeFn(ctx, sessionID, state, code)
}

func (m *mockCallback) CancelLogin(ctx context.Context, sessionID, state string) (string, error) {
	return m.cancelFn(ctx, sessionID, state)
}

// --- Test helpers ---

type testEnv struct {
	srv       *Server
	svc       *app.Service
	memory    *sillapi.Memory
	directory *keycloak.MockDirectory
	clock     *clockwork.FakeClock
	registry  *prometheus.Registry
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:        "development",
		Port:          "8080",
		PublicURL:     "http://localhost:8080",
		SessionSecret: "test-secret-key-32-bytes-long!!!",
		SessionMaxAge: time.Hour,
		MockMode:      true,
	}
}

// newTestEnv wires the server to a mock-mode application: in-memory backend
// and instant-login identities.
func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()

	memory := sillapi.NewMemory()
	directory := keycloak.NewMockDirectory()
	clock := clockwork.NewFakeClock()

	factory := func(_ context.Context, sessionID string) (domain.Identity, domain.SillAPI, error) {
		identity := directory.Identity(sessionID)
		return identity, memory.Bind(identity), nil
	}
	svc := app.NewService(factory, catalog.NewExplorer(memory.Bind(nil)), clock, app.Options{})
	t.Cleanup(svc.Stop)

	registry := prometheus.NewRegistry()
	options := Options{Registry: registry, Clock: clock}
	for _, opt := range opts {
		opt(&options)
	}

	srv, err := NewServer(testConfig(), svc, options)
	require.NoError(t, err)

	return &testEnv{srv: srv, svc: svc, memory: memory, directory: directory, clock: clock, registry: registry}
}

func withCallback(cb LoginCallback) func(*Options) {
	return func(o *Options) {
		o.Callback = cb
	}
}

func withHealthChecks(checks ...HealthCheck) func(*Options) {
	return func(o *Options) {
		o.HealthChecks = checks
	}
}

// browser replays cookies across requests the way a browser would.
type browser struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
	accept  string
}

func (e *testEnv) browser(t *testing.T) *browser {
	return &browser{t: t, srv: e.srv, cookies: map[string]*http.Cookie{}, accept: "text/html"}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	if req.Header.Get("Accept") == "" && b.accept != "" {
		req.Header.Set("Accept", b.accept)
	}

	rec := httptest.NewRecorder()
	b.srv.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

// postForm submits a form carrying the CSRF token of the last page visited.
func (b *browser) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if csrf, ok := b.cookies["csrf_token"]; ok {
		form.Set("csrf_token", csrf.Value)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) postJSON(target, body string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if csrf, ok := b.cookies["csrf_token"]; ok {
		req.Header.Set("X-CSRF-Token", csrf.Value)
	}
	return b.do(req)
}

// login goes through the mock login flow and lands on the catalog.
func (b *browser) login() {
	b.t.Helper()
	rec := b.get("/auth/login?returnTo=%2Fcatalog")
	require.Equal(b.t, http.StatusFound, rec.Code)
	require.Equal(b.t, "/catalog", rec.Header().Get("Location"))
}

func newGet(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}
