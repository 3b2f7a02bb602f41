package userauth

import (
	"fmt"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// Field is one editable profile field.
type Field struct {
	Value          string `json:"value"`
	IsBeingUpdated bool   `json:"isBeingUpdated"`
}

// ProfileState is the editable part of the user record.
type ProfileState struct {
	AgencyName Field `json:"agencyName"`
	Email      Field `json:"email"`
}

// Field returns the state of the named field.
func (s ProfileState) Field(name domain.FieldName) Field {
	return *s.field(name)
}

func (s *ProfileState) field(name domain.FieldName) *Field {
	switch name {
	case domain.FieldAgencyName:
		return &s.AgencyName
	case domain.FieldEmail:
		return &s.Email
	default:
		panic(fmt.Sprintf("userauth: unknown field %q", name))
	}
}

// initialized builds the state from a freshly fetched user record.
func initialized(user *domain.User) *ProfileState {
	return &ProfileState{
		AgencyName: Field{Value: user.AgencyName},
		Email:      Field{Value: user.Email},
	}
}

// updateFieldStarted flags the field busy. The confirmed value is kept.
func (s *ProfileState) updateFieldStarted(name domain.FieldName) {
	s.field(name).IsBeingUpdated = true
}

func (s *ProfileState) updateFieldCompleted(name domain.FieldName) {
	s.field(name).IsBeingUpdated = false
}
