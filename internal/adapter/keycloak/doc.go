// Package keycloak implements domain.Identity on top of a Keycloak realm
// using the OpenID Connect authorization code flow with PKCE.
package keycloak
