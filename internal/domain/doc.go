// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (user.go, config.go, identity.go, catalog.go, ...) hold
// the shared types and the contracts of the external collaborators: the SILL
// backend API and the identity provider. No implementation code.
package domain
