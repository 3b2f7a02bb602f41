package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/codegouvfr/sill-web/internal/domain"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
	"github.com/codegouvfr/sill-web/internal/userauth"
)

// AccountView is the model of the account page.
type AccountView struct {
	User                    domain.ImmutableUserFields `json:"user"`
	AgencyName              userauth.Field             `json:"agencyName"`
	Email                   userauth.Field             `json:"email"`
	AgencyNames             []string                   `json:"agencyNames"`
	AllowedEmailPattern     string                     `json:"allowedEmailPattern"`
	TermsOfServiceURL       string                     `json:"termsOfServiceUrl"`
	AccountConfigurationURL string                     `json:"accountConfigurationUrl,omitempty"`
}

// Account builds the account page model. sess must be logged in.
func (s *Service) Account(ctx context.Context, sess *Session, lang domain.Language) (*AccountView, error) {
	w := sess.Workflow

	state, ok := w.State()
	if !ok {
		return nil, apperrors.UnauthorizedError("account requires an authenticated session")
	}

	names, err := w.AgencyNames(ctx)
	if err != nil {
		return nil, s.accountError(ctx, sess, "failed to load agency names", err)
	}
	pattern, err := w.AllowedEmailPattern(ctx)
	if err != nil {
		return nil, s.accountError(ctx, sess, "failed to load the allowed email pattern", err)
	}

	return &AccountView{
		User:                    w.ImmutableFields(),
		AgencyName:              state.AgencyName,
		Email:                   state.Email,
		AgencyNames:             names,
		AllowedEmailPattern:     pattern.String(),
		TermsOfServiceURL:       w.TermsOfServiceURL().Resolve(lang),
		AccountConfigurationURL: w.AccountConfigurationURL(),
	}, nil
}

// accountError maps a backend failure of an authenticated call.
func (s *Service) accountError(ctx context.Context, sess *Session, message string, err error) error {
	if s.dropIfExpired(ctx, sess, err) {
		return apperrors.UnauthorizedError("session expired, please log in again")
	}
	return apperrors.ExternalError(message, err)
}

// UpdateProfileField validates value and pushes it through the profile
// workflow. Once the update ran, successful or not, the session is dropped:
// the next page load re-reads the confirmed values and clears the busy flag,
// as a reload would. Errors are *apperrors.Error.
func (s *Service) UpdateProfileField(ctx context.Context, sess *Session, rawField, value string) error {
	field, err := domain.ParseFieldName(rawField)
	if err != nil {
		return apperrors.ValidationError("unknown profile field").WithField("field", rawField)
	}
	if _, ok := sess.Workflow.State(); !ok {
		return apperrors.UnauthorizedError("profile updates require an authenticated session")
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return apperrors.ValidationError("value must not be empty").WithField("field", field)
	}

	if field == domain.FieldEmail {
		pattern, err := sess.Workflow.AllowedEmailPattern(ctx)
		if err != nil {
			return s.accountError(ctx, sess, "failed to load the allowed email pattern", err)
		}
		if !pattern.MatchString(value) {
			return apperrors.ValidationError("email address is not allowed").WithField("field", field)
		}
	}

	if err := sess.Workflow.UpdateField(ctx, field, value); err != nil {
		if s.dropIfExpired(ctx, sess, err) {
			return apperrors.UnauthorizedError("session expired, please log in again").WithField("field", field)
		}
		s.Drop(sess.ID, "profile_update_failed")
		return apperrors.ExternalError("failed to update "+string(field), err).WithField("field", field)
	}

	if field == domain.FieldAgencyName && s.references != nil {
		if err := s.references.InvalidateAgencyNames(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to invalidate agency names cache", "error", err)
		}
	}

	// The workflow only ever shows the values read at initialization.
	s.Drop(sess.ID, "profile_update")
	return nil
}
