// Package userauth holds the authenticated user's editable profile fields and
// drives their two-phase updates.
//
// A Workflow belongs to exactly one browser session. Initialize captures the
// user record and the backend's identity configuration; UpdateField marks a
// field busy, pushes the new value to the backend, refreshes the identity
// token (the backend record is embedded in it) and marks the field idle again.
// A failed update leaves the field busy.
package userauth
