package sillapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// TokenSource yields the bearer token of a browser session.
// domain.Identity implementations satisfy it.
type TokenSource interface {
	IsLoggedIn() bool
	AccessToken(ctx context.Context) (string, error)
}

// Session is the client bound to one browser session. It implements every
// domain.SillAPI call except CurrentUser, which comes from the identity.
type Session struct {
	client *Client
	tokens TokenSource
}

func (c *Client) Bind(tokens TokenSource) *Session {
	return &Session{client: c, tokens: tokens}
}

// token returns "" for anonymous sessions.
func (s *Session) token(ctx context.Context) (string, error) {
	if s.tokens == nil || !s.tokens.IsLoggedIn() {
		return "", nil
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	return token, nil
}

func (s *Session) requireToken(ctx context.Context) (string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", domain.ErrNotAuthenticated
	}
	return token, nil
}

func (s *Session) UpdateAgencyName(ctx context.Context, newAgencyName string) error {
	token, err := s.requireToken(ctx)
	if err != nil {
		return err
	}
	return s.client.mutate(ctx, token, "updateAgencyName", map[string]string{"newAgencyName": newAgencyName}, nil)
}

func (s *Session) UpdateEmail(ctx context.Context, newEmail string) error {
	token, err := s.requireToken(ctx)
	if err != nil {
		return err
	}
	return s.client.mutate(ctx, token, "updateEmail", map[string]string{"newEmail": newEmail}, nil)
}

func (s *Session) AllowedEmailRegexp(ctx context.Context) (string, error) {
	var pattern string
	err := s.anonymousQuery(ctx, "getAllowedEmailRegexp", &pattern)
	return pattern, err
}

func (s *Session) AgencyNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.anonymousQuery(ctx, "getAgencyNames", &names)
	return names, err
}

func (s *Session) ServiceConfiguration(ctx context.Context) (*domain.ServiceConfiguration, error) {
	var cfg domain.ServiceConfiguration
	if err := s.anonymousQuery(ctx, "getOidcParams", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Session) Softwares(ctx context.Context) ([]domain.Software, error) {
	var softwares []domain.Software
	err := s.anonymousQuery(ctx, "getSoftwares", &softwares)
	return softwares, err
}

// UserSoftwareIDs returns nil for anonymous sessions.
func (s *Session) UserSoftwareIDs(ctx context.Context) ([]int, error) {
	token, err := s.requireToken(ctx)
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int
	err = s.client.query(ctx, token, "getUserSoftwareIds", nil, &ids)
	return ids, err
}

func (s *Session) APIVersion(ctx context.Context) (string, error) {
	var v string
	err := s.anonymousQuery(ctx, "getApiVersion", &v)
	return v, err
}

func (s *Session) anonymousQuery(ctx context.Context, procedure string, out any) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.client.query(ctx, token, procedure, nil, out)
}
