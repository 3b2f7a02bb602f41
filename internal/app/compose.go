package app

import (
	"context"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// ReferenceData is the subset of the backend shared by every session.
type ReferenceData interface {
	Softwares(ctx context.Context) ([]domain.Software, error)
	AgencyNames(ctx context.Context) ([]string, error)
}

// SessionAPI is domain.SillAPI without CurrentUser. *sillapi.Session
// implements it.
type SessionAPI interface {
	UpdateAgencyName(ctx context.Context, newAgencyName string) error
	UpdateEmail(ctx context.Context, newEmail string) error
	AllowedEmailRegexp(ctx context.Context) (string, error)
	AgencyNames(ctx context.Context) ([]string, error)
	ServiceConfiguration(ctx context.Context) (*domain.ServiceConfiguration, error)
	Softwares(ctx context.Context) ([]domain.Software, error)
	UserSoftwareIDs(ctx context.Context) ([]int, error)
	APIVersion(ctx context.Context) (string, error)
}

// WithIdentityUser serves CurrentUser from the identity's ID token instead of
// the backend.
func WithIdentityUser(api SessionAPI, users domain.UserGetter) domain.SillAPI {
	return &identityUserAPI{SessionAPI: api, users: users}
}

type identityUserAPI struct {
	SessionAPI
	users domain.UserGetter
}

func (a *identityUserAPI) CurrentUser(ctx context.Context) (*domain.User, error) {
	return a.users.CurrentUser(ctx)
}

// WithReferenceData serves the software list and agency names from ref,
// typically a cache shared across sessions.
func WithReferenceData(api domain.SillAPI, ref ReferenceData) domain.SillAPI {
	return &referenceAPI{SillAPI: api, ref: ref}
}

type referenceAPI struct {
	domain.SillAPI
	ref ReferenceData
}

func (a *referenceAPI) Softwares(ctx context.Context) ([]domain.Software, error) {
	return a.ref.Softwares(ctx)
}

func (a *referenceAPI) AgencyNames(ctx context.Context) ([]string, error) {
	return a.ref.AgencyNames(ctx)
}
