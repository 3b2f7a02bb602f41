package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/platform/i18n"
)

// refreshLeeway renews access tokens that are about to expire.
const refreshLeeway = 30 * time.Second

// Session is the Keycloak identity of one browser session.
type Session struct {
	provider  *Provider
	store     domain.TokenStore
	sessionID string
	clock     clockwork.Clock

	mu    sync.Mutex
	token *domain.AuthToken
}

var (
	_ domain.Identity   = (*Session)(nil)
	_ domain.UserGetter = (*Session)(nil)
)

// NewSession restores the token stored for sessionID, if any.
func NewSession(ctx context.Context, provider *Provider, store domain.TokenStore, sessionID string, clock clockwork.Clock) (*Session, error) {
	tok, err := store.LoadToken(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to load session token: %w", err)
	}
	return &Session{
		provider:  provider,
		store:     store,
		sessionID: sessionID,
		clock:     clock,
		token:     tok,
	}, nil
}

func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// Login records a pending login and redirects to the authorization endpoint.
// When the current page requires authentication, backing out of the login
// page lands on the home page instead of coming back.
func (s *Session) Login(ctx context.Context, requiresAuth bool) error {
	page := domain.CurrentPage(ctx)
	pending := domain.PendingLogin{
		SessionID: s.sessionID,
		ReturnTo:  page,
		CancelTo:  page,
		Verifier:  oauth2.GenerateVerifier(),
	}
	if requiresAuth {
		pending.CancelTo = "/"
	}

	state := uuid.NewString()
	if err := s.store.SaveLoginState(ctx, state, pending); err != nil {
		return fmt.Errorf("failed to save login state: %w", err)
	}

	return &domain.Redirect{URL: s.provider.AuthCodeURL(state, pending.Verifier, i18n.FromContext(ctx))}
}

func (s *Session) Logout(ctx context.Context, target domain.LogoutTarget) error {
	s.mu.Lock()
	tok := s.token
	s.token = nil
	s.mu.Unlock()

	if err := s.store.DeleteToken(ctx, s.sessionID); err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}

	redirectPath := "/"
	if target == domain.LogoutToCurrentPage {
		redirectPath = domain.CurrentPage(ctx)
	}

	var idToken string
	if tok != nil {
		idToken = tok.IDToken
	}
	return &domain.Redirect{URL: s.provider.EndSessionURL(idToken, redirectPath)}
}

// RefreshToken renews the token set so that claims changed on the backend
// (email, agency name) show up in the ID token.
func (s *Session) RefreshToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.token == nil {
		return domain.ErrNotAuthenticated
	}

	tok, err := s.provider.Refresh(ctx, s.token)
	if refreshRejected(err) {
		// The SSO session is gone; the browser session is logged out.
		s.token = nil
		if err := s.store.DeleteToken(ctx, s.sessionID); err != nil {
			slog.WarnContext(ctx, "Failed to delete rejected token", "error", err)
		}
		slog.InfoContext(ctx, "Refresh token rejected, session logged out", "error", err)
		return fmt.Errorf("refresh token rejected: %w", domain.ErrNotAuthenticated)
	}
	if err != nil {
		return err
	}
	if err := s.store.SaveToken(ctx, s.sessionID, tok); err != nil {
		return fmt.Errorf("failed to save refreshed token: %w", err)
	}
	s.token = tok

	slog.DebugContext(ctx, "Token refreshed", "expiry", tok.Expiry)
	return nil
}

func refreshRejected(err error) bool {
	retrieveErr, ok := errors.AsType[*oauth2.RetrieveError](err)
	return ok && retrieveErr.ErrorCode == "invalid_grant"
}

func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return "", domain.ErrNotAuthenticated
	}
	if !s.token.Expiry.IsZero() && s.clock.Now().Add(refreshLeeway).After(s.token.Expiry) {
		if err := s.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return s.token.AccessToken, nil
}

// CurrentUser reads the user from the ID token claims. nil when logged out.
func (s *Session) CurrentUser(context.Context) (*domain.User, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	if tok == nil {
		return nil, nil
	}
	claims, err := ParseIDToken(tok.IDToken, s.provider.Issuer())
	if err != nil {
		return nil, err
	}
	return claims.User(), nil
}

// CompleteLogin handles the authorization callback: it consumes state,
// checks it was issued for sessionID, exchanges code and stores the token.
// It returns the page to go back to.
func (p *Provider) CompleteLogin(ctx context.Context, store domain.TokenStore, sessionID, state, code string) (string, error) {
	pending, err := consume(ctx, store, sessionID, state)
	if err != nil {
		return "", err
	}

	tok, err := p.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		return "", err
	}
	if _, err := ParseIDToken(tok.IDToken, p.issuer); err != nil {
		return "", err
	}
	if err := store.SaveToken(ctx, sessionID, tok); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}
	return pending.ReturnTo, nil
}

// CancelLogin consumes state after the user backed out of the login page
// and returns where to send them.
func (p *Provider) CancelLogin(ctx context.Context, store domain.TokenStore, sessionID, state string) (string, error) {
	pending, err := consume(ctx, store, sessionID, state)
	if err != nil {
		return "", err
	}
	return pending.CancelTo, nil
}

func consume(ctx context.Context, store domain.TokenStore, sessionID, state string) (*domain.PendingLogin, error) {
	if state == "" {
		return nil, domain.ErrInvalidLoginState
	}
	pending, err := store.ConsumeLoginState(ctx, state)
	if err != nil {
		return nil, err
	}
	if pending.SessionID != sessionID {
		return nil, fmt.Errorf("%w: issued for another session", domain.ErrInvalidLoginState)
	}
	return pending, nil
}

// Callback binds a provider to its token store for the login callback route.
type Callback struct {
	Provider *Provider
	Store    domain.TokenStore
}

func (c Callback) CompleteLogin(ctx context.Context, sessionID, state, code string) (string, error) {
	return c.Provider.CompleteLogin(ctx, c.Store, sessionID, state, code)
}

func (c Callback) CancelLogin(ctx context.Context, sessionID, state string) (string, error) {
	return c.Provider.CancelLogin(ctx, c.Store, sessionID, state)
}
