package domain

import (
	"context"
	"fmt"
)

// User is the record the backend holds for the authenticated user.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	AgencyName string `json:"agencyName"`
	Locale     string `json:"locale"`
}

// ImmutableUserFields are captured once per session and never updated in-session.
type ImmutableUserFields struct {
	ID     string `json:"id"`
	Locale string `json:"locale"`
}

// FieldName names one of the editable profile fields.
type FieldName string

const (
	FieldAgencyName FieldName = "agencyName"
	FieldEmail      FieldName = "email"
)

// ParseFieldName validates a field name coming from outside the process.
func ParseFieldName(s string) (FieldName, error) {
	switch FieldName(s) {
	case FieldAgencyName, FieldEmail:
		return FieldName(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
}

// UserGetter fetches the current user record. A nil user with a nil error
// means the backend has no record for the session.
type UserGetter interface {
	CurrentUser(ctx context.Context) (*User, error)
}
