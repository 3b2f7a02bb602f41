package domain

import "context"

// SillAPI is the SILL backend as seen by one browser session.
type SillAPI interface {
	UserGetter

	UpdateAgencyName(ctx context.Context, newAgencyName string) error
	UpdateEmail(ctx context.Context, newEmail string) error
	AllowedEmailRegexp(ctx context.Context) (string, error)
	AgencyNames(ctx context.Context) ([]string, error)
	ServiceConfiguration(ctx context.Context) (*ServiceConfiguration, error)

	Softwares(ctx context.Context) ([]Software, error)
	UserSoftwareIDs(ctx context.Context) ([]int, error)
	APIVersion(ctx context.Context) (string, error)
}
