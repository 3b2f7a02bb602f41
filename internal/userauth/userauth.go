package userauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sync"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// UpdateRecorder observes the outcome of profile field updates.
type UpdateRecorder interface {
	RecordProfileUpdate(field domain.FieldName, err error)
}

// userContext is written once by Initialize and only read afterwards.
type userContext struct {
	// nil when not authenticated
	immutableFields *domain.ImmutableUserFields
	termsOfServiceURL domain.LocalizedString
	// empty when the identity provider is not Keycloak
	accountConfigurationURL string
}

// Workflow owns the profile state of one browser session.
type Workflow struct {
	api      domain.SillAPI
	identity domain.Identity
	recorder UpdateRecorder

	mu      sync.RWMutex
	state   *ProfileState
	userCtx *userContext
}

// New creates an uninitialized workflow. recorder may be nil.
func New(api domain.SillAPI, identity domain.Identity, recorder UpdateRecorder) *Workflow {
	return &Workflow{
		api:      api,
		identity: identity,
		recorder: recorder,
	}
}

// Initialize fetches the user record (when logged in) and the backend's
// service configuration. It must be called once, before any other method
// except IsLoggedIn, Login and Logout.
func (w *Workflow) Initialize(ctx context.Context) error {
	w.mu.RLock()
	done := w.userCtx != nil
	w.mu.RUnlock()
	if done {
		panic("userauth: Initialize called twice")
	}

	var user *domain.User
	if w.identity.IsLoggedIn() {
		var err error
		user, err = w.api.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch current user: %w", err)
		}
	}

	if user != nil {
		w.mu.Lock()
		w.state = initialized(user)
		w.mu.Unlock()
	}

	cfg, err := w.api.ServiceConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch service configuration: %w", err)
	}

	uc := &userContext{termsOfServiceURL: cfg.TermsOfServiceURL}
	if user != nil {
		uc.immutableFields = &domain.ImmutableUserFields{ID: user.ID, Locale: user.Locale}
	}
	if kc := cfg.KeycloakParams; kc != nil {
		accountURL, err := url.JoinPath(kc.URL, "realms", kc.Realm, "account")
		if err != nil {
			return fmt.Errorf("invalid keycloak url %q: %w", kc.URL, err)
		}
		uc.accountConfigurationURL = accountURL
	}

	w.mu.Lock()
	w.userCtx = uc
	w.mu.Unlock()

	slog.DebugContext(ctx, "User authentication initialized", "logged_in", user != nil)
	return nil
}

// State returns a snapshot of the profile fields. ok is false while the
// state is uninitialized.
func (w *Workflow) State() (state ProfileState, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state == nil {
		return ProfileState{}, false
	}
	return *w.state, true
}

// ImmutableFields returns the id and locale captured at initialization.
// Calling it on an unauthenticated session is a programming error.
func (w *Workflow) ImmutableFields() domain.ImmutableUserFields {
	uc := w.context()
	if uc.immutableFields == nil {
		panic("userauth: ImmutableFields called while not authenticated")
	}
	return *uc.immutableFields
}

func (w *Workflow) IsLoggedIn() bool {
	return w.identity.IsLoggedIn()
}

// Login sends the browser to the identity provider. It always returns a
// non-nil error, a *domain.Redirect on success.
func (w *Workflow) Login(ctx context.Context, requiresAuth bool) error {
	if w.identity.IsLoggedIn() {
		panic("userauth: Login called while logged in")
	}
	return w.identity.Login(ctx, requiresAuth)
}

// Logout ends the identity-provider session. It always returns a non-nil
// error, a *domain.Redirect on success.
func (w *Workflow) Logout(ctx context.Context, target domain.LogoutTarget) error {
	if !w.identity.IsLoggedIn() {
		panic("userauth: Logout called while not logged in")
	}
	return w.identity.Logout(ctx, target)
}

func (w *Workflow) TermsOfServiceURL() domain.LocalizedString {
	return w.context().termsOfServiceURL
}

// AccountConfigurationURL returns "" unless the identity provider is Keycloak.
func (w *Workflow) AccountConfigurationURL() string {
	return w.context().accountConfigurationURL
}

// UpdateField pushes a new value for field to the backend. The field is
// marked busy before the remote call and idle once the call and the token
// refresh that follows it have succeeded. On error the field stays busy.
func (w *Workflow) UpdateField(ctx context.Context, field domain.FieldName, value string) error {
	if _, err := domain.ParseFieldName(string(field)); err != nil {
		return err
	}

	w.mu.Lock()
	if w.state == nil {
		w.mu.Unlock()
		panic("userauth: UpdateField called before the profile was initialized")
	}
	w.state.updateFieldStarted(field)
	w.mu.Unlock()

	err := w.update(ctx, field, value)
	if w.recorder != nil {
		w.recorder.RecordProfileUpdate(field, err)
	}
	if err != nil {
		slog.WarnContext(ctx, "Profile field update failed", "field", field, "error", err)
		return err
	}

	w.mu.Lock()
	w.state.updateFieldCompleted(field)
	w.mu.Unlock()

	slog.InfoContext(ctx, "Profile field updated", "field", field)
	return nil
}

func (w *Workflow) update(ctx context.Context, field domain.FieldName, value string) error {
	var err error
	switch field {
	case domain.FieldAgencyName:
		err = w.api.UpdateAgencyName(ctx, value)
	case domain.FieldEmail:
		err = w.api.UpdateEmail(ctx, value)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}

	if !w.identity.IsLoggedIn() {
		panic("userauth: session ended during a profile update")
	}

	if err := w.identity.RefreshToken(ctx); err != nil {
		return fmt.Errorf("failed to refresh token after %s update: %w", field, err)
	}
	return nil
}

// AllowedEmailPattern returns the backend's email validation pattern.
func (w *Workflow) AllowedEmailPattern(ctx context.Context) (*regexp.Regexp, error) {
	src, err := w.api.AllowedEmailRegexp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch allowed email pattern: %w", err)
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("backend returned an invalid email pattern %q: %w", src, err)
	}
	return re, nil
}

// AgencyNames returns the organization names offered as suggestions.
func (w *Workflow) AgencyNames(ctx context.Context) ([]string, error) {
	names, err := w.api.AgencyNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agency names: %w", err)
	}
	return names, nil
}

func (w *Workflow) context() *userContext {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.userCtx == nil {
		panic("userauth: used before Initialize")
	}
	return w.userCtx
}
