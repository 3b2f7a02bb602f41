package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// LoginDecoration carries the values appended to every authorization URL so
// the login theme can link back to the catalog.
type LoginDecoration struct {
	SillAPIURL        string
	AppOrigin         string
	TermsOfServiceURL domain.LocalizedString
}

// Provider talks to one Keycloak realm.
type Provider struct {
	oauth      *oauth2.Config
	issuer     string
	logoutURL  string
	publicURL  string
	decoration LoginDecoration
}

// NewProvider builds the realm endpoints from the backend's Keycloak params.
// publicURL is the external base URL of this web app; the OIDC callback is
// served at publicURL + "/auth/callback".
func NewProvider(params domain.KeycloakParams, clientSecret, publicURL string, decoration LoginDecoration) (*Provider, error) {
	if params.URL == "" || params.Realm == "" || params.ClientID == "" {
		return nil, errors.New("keycloak params require url, realm and clientId")
	}

	issuer, err := url.JoinPath(params.URL, "realms", params.Realm)
	if err != nil {
		return nil, fmt.Errorf("invalid keycloak url %q: %w", params.URL, err)
	}
	publicURL = strings.TrimSuffix(publicURL, "/")

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     params.ClientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  issuer + "/protocol/openid-connect/auth",
				TokenURL: issuer + "/protocol/openid-connect/token",
			},
			RedirectURL: publicURL + "/auth/callback",
			Scopes:      []string{"openid", "email", "profile"},
		},
		issuer:     issuer,
		logoutURL:  issuer + "/protocol/openid-connect/logout",
		publicURL:  publicURL,
		decoration: decoration,
	}, nil
}

func (p *Provider) Issuer() string {
	return p.issuer
}

// AuthCodeURL returns the authorization URL for state, decorated with the
// parameters the login theme expects.
func (p *Provider) AuthCodeURL(state, verifier string, lang domain.Language) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("ui_locales", string(lang)),
	}
	if p.decoration.SillAPIURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("sill-api-url", p.decoration.SillAPIURL))
	}
	if tos := p.decoration.TermsOfServiceURL.Resolve(lang); tos != "" {
		opts = append(opts, oauth2.SetAuthURLParam("terms-of-service-url", tos))
	}
	if p.decoration.AppOrigin != "" {
		opts = append(opts, oauth2.SetAuthURLParam("app-location-origin", p.decoration.AppOrigin))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*domain.AuthToken, error) {
	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return toAuthToken(tok, "")
}

// Refresh forces a refresh_token grant regardless of the access token expiry.
func (p *Provider) Refresh(ctx context.Context, current *domain.AuthToken) (*domain.AuthToken, error) {
	if current.RefreshToken == "" {
		return nil, errors.New("session has no refresh token")
	}
	src := p.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return toAuthToken(tok, current.IDToken)
}

// EndSessionURL is where the browser goes to log out; Keycloak then sends it
// to redirectPath on this app.
func (p *Provider) EndSessionURL(idToken, redirectPath string) string {
	q := url.Values{}
	q.Set("client_id", p.oauth.ClientID)
	q.Set("post_logout_redirect_uri", p.publicURL+redirectPath)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	return p.logoutURL + "?" + q.Encode()
}

// toAuthToken keeps previousIDToken when the grant did not return a new one.
func toAuthToken(tok *oauth2.Token, previousIDToken string) (*domain.AuthToken, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		idToken = previousIDToken
	}
	if idToken == "" {
		return nil, errors.New("token response carries no id_token")
	}
	return &domain.AuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		Expiry:       tok.Expiry,
	}, nil
}
