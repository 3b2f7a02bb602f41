package keycloak

import (
	"context"
	"fmt"
	"sync"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// MockDirectory remembers which browser sessions are logged in when the app
// runs without an identity provider.
type MockDirectory struct {
	mu       sync.Mutex
	loggedIn map[string]bool
	ended    map[string]bool
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{loggedIn: make(map[string]bool), ended: make(map[string]bool)}
}

// EndSSOSessions signs every logged-in session out of the realm. Like with
// Keycloak, the browser sessions only notice on their next token use.
func (d *MockDirectory) EndSSOSessions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sessionID := range d.loggedIn {
		d.ended[sessionID] = true
	}
}

// Identity returns the mock identity of sessionID.
func (d *MockDirectory) Identity(sessionID string) *MockIdentity {
	return &MockIdentity{dir: d, sessionID: sessionID}
}

func (d *MockDirectory) set(sessionID string, loggedIn bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ended, sessionID)
	if loggedIn {
		d.loggedIn[sessionID] = true
	} else {
		delete(d.loggedIn, sessionID)
	}
}

// MockIdentity logs in instantly: Login redirects straight back to the page
// it was called from.
type MockIdentity struct {
	dir       *MockDirectory
	sessionID string
}

var _ domain.Identity = (*MockIdentity)(nil)

func (m *MockIdentity) IsLoggedIn() bool {
	m.dir.mu.Lock()
	defer m.dir.mu.Unlock()
	return m.dir.loggedIn[m.sessionID]
}

func (m *MockIdentity) Login(ctx context.Context, _ bool) error {
	m.dir.set(m.sessionID, true)
	return &domain.Redirect{URL: domain.CurrentPage(ctx)}
}

func (m *MockIdentity) Logout(ctx context.Context, target domain.LogoutTarget) error {
	m.dir.set(m.sessionID, false)
	if target == domain.LogoutToCurrentPage {
		return &domain.Redirect{URL: domain.CurrentPage(ctx)}
	}
	return &domain.Redirect{URL: "/"}
}

// checkSSOSession logs the identity out once its realm session has ended.
func (m *MockIdentity) checkSSOSession() error {
	m.dir.mu.Lock()
	defer m.dir.mu.Unlock()
	if !m.dir.ended[m.sessionID] {
		return nil
	}
	delete(m.dir.ended, m.sessionID)
	delete(m.dir.loggedIn, m.sessionID)
	return fmt.Errorf("refresh token rejected: %w", domain.ErrNotAuthenticated)
}

func (m *MockIdentity) RefreshToken(context.Context) error {
	if err := m.checkSSOSession(); err != nil {
		return err
	}
	if !m.IsLoggedIn() {
		return domain.ErrNotAuthenticated
	}
	return nil
}

func (m *MockIdentity) AccessToken(context.Context) (string, error) {
	if err := m.checkSSOSession(); err != nil {
		return "", err
	}
	if !m.IsLoggedIn() {
		return "", domain.ErrNotAuthenticated
	}
	return "mock-token-" + m.sessionID, nil
}
