package domain

import (
	"context"
	"time"
)

// AuthToken is the identity-provider token set of one browser session.
type AuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token"`
	Expiry       time.Time `json:"expiry"`
}

// PendingLogin is recorded when the browser is sent to the identity provider
// and consumed when it comes back.
type PendingLogin struct {
	SessionID string `json:"session_id"`
	// ReturnTo is where to go once logged in, CancelTo where to go when the
	// user backs out of the login page.
	ReturnTo string `json:"return_to"`
	CancelTo string `json:"cancel_to"`
	// PKCE code verifier
	Verifier string `json:"verifier"`
}

// TokenStore persists tokens and pending logins across requests.
type TokenStore interface {
	SaveToken(ctx context.Context, sessionID string, token *AuthToken) error
	// LoadToken returns ErrTokenNotFound when the session has no token.
	LoadToken(ctx context.Context, sessionID string) (*AuthToken, error)
	DeleteToken(ctx context.Context, sessionID string) error

	SaveLoginState(ctx context.Context, state string, pending PendingLogin) error
	// ConsumeLoginState returns ErrInvalidLoginState for unknown or
	// already used states.
	ConsumeLoginState(ctx context.Context, state string) (*PendingLogin, error)
}

type currentPageKey struct{}

// WithCurrentPage records the path (with query) of the page being served.
func WithCurrentPage(ctx context.Context, page string) context.Context {
	return context.WithValue(ctx, currentPageKey{}, page)
}

// CurrentPage returns the page recorded by WithCurrentPage, "/" by default.
func CurrentPage(ctx context.Context) string {
	if page, ok := ctx.Value(currentPageKey{}).(string); ok && page != "" {
		return page
	}
	return "/"
}
