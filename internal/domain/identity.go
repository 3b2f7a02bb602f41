package domain

import (
	"context"
	"fmt"
)

// LogoutTarget is where the identity provider sends the browser after logout.
type LogoutTarget string

const (
	LogoutToHome        LogoutTarget = "home"
	LogoutToCurrentPage LogoutTarget = "current page"
)

// Identity is the identity-provider session bound to one browser session.
//
// Login and Logout never complete normally: on success they return a
// *Redirect error that the caller must propagate and follow. Code after a
// successful call must not assume the session continues.
type Identity interface {
	IsLoggedIn() bool
	Login(ctx context.Context, requiresAuth bool) error
	Logout(ctx context.Context, target LogoutTarget) error
	RefreshToken(ctx context.Context) error
	AccessToken(ctx context.Context) (string, error)
}

// Redirect is returned by operations whose only outcome is sending the
// browser elsewhere.
type Redirect struct {
	URL string
}

func (r *Redirect) Error() string {
	return fmt.Sprintf("redirect to %s", r.URL)
}
