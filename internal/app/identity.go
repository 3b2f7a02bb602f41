package app

import (
	"context"
	"errors"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// ErrNoIdentityProvider is returned by AnonymousIdentity.Login.
var ErrNoIdentityProvider = errors.New("the SILL API does not advertise an identity provider")

// AnonymousIdentity is used when the backend publishes no Keycloak params:
// every session stays anonymous.
type AnonymousIdentity struct{}

var _ domain.Identity = AnonymousIdentity{}

func (AnonymousIdentity) IsLoggedIn() bool { return false }

func (AnonymousIdentity) Login(context.Context, bool) error { return ErrNoIdentityProvider }

func (AnonymousIdentity) Logout(context.Context, domain.LogoutTarget) error {
	return domain.ErrNotAuthenticated
}

func (AnonymousIdentity) RefreshToken(context.Context) error { return domain.ErrNotAuthenticated }

// CurrentUser reports no user, like the backend does for anonymous calls.
func (AnonymousIdentity) CurrentUser(context.Context) (*domain.User, error) { return nil, nil }

func (AnonymousIdentity) AccessToken(context.Context) (string, error) {
	return "", domain.ErrNotAuthenticated
}
