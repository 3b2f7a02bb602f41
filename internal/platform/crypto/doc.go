// Package crypto seals identity-provider tokens before they are written to
// Redis. AESGCM is used in production, Noop when no key is configured.
package crypto
