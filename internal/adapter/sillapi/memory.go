package sillapi

import (
	"context"
	"slices"
	"sync"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// Memory is the in-process backend used in mock mode. It holds a single
// user record shared by every session.
type Memory struct {
	mu              sync.RWMutex
	user            domain.User
	agencyNames     []string
	emailPattern    string
	config          domain.ServiceConfiguration
	softwares       []domain.Software
	userSoftwareIDs []int
}

func NewMemory() *Memory {
	return &Memory{
		user: domain.User{
			ID:         "mock-user",
			Email:      "jane.doe@example.gouv.fr",
			AgencyName: "DINUM",
			Locale:     "fr",
		},
		agencyNames:  []string{"DINUM", "ANSSI", "Etalab", "INSEE"},
		emailPattern: `^[^@\s]+@([^@\s.]+\.)*gouv\.fr$`,
		config: domain.ServiceConfiguration{
			TermsOfServiceURL: domain.LocalizedString{
				domain.LanguageEnglish: "https://sill.example/tos_en.md",
				domain.LanguageFrench:  "https://sill.example/tos_fr.md",
			},
		},
		softwares: []domain.Software{
			{ID: 1, Name: "LibreOffice", Function: "Suite bureautique", Keywords: []string{"tableur", "traitement de texte"}, License: "MPL-2.0", ReferentCount: 12,
				Alike: []domain.AlikeSoftware{{IsKnown: true, SoftwareID: 2}, {Name: "Microsoft Office"}}},
			{ID: 2, Name: "OnlyOffice", Function: "Suite bureautique collaborative", License: "AGPL-3.0", ReferentCount: 3},
			{ID: 3, Name: "GIMP", Function: "Retouche d'images", Keywords: []string{"photo"}, License: "GPL-3.0", ReferentCount: 4,
				Alike: []domain.AlikeSoftware{{IsKnown: true, SoftwareID: 4}, {Name: "Adobe Photoshop"}}},
			{ID: 4, Name: "Krita", Function: "Peinture numérique", License: "GPL-3.0", ReferentCount: 1},
			{ID: 5, Name: "Firefox", Function: "Navigateur web", Keywords: []string{"navigateur", "browser"}, License: "MPL-2.0", ReferentCount: 20,
				Alike: []domain.AlikeSoftware{{Name: "Google Chrome"}}},
			{ID: 6, Name: "Thunderbird", Function: "Client de messagerie", Keywords: []string{"email", "courriel"}, License: "MPL-2.0", ReferentCount: 9},
		},
		userSoftwareIDs: []int{1, 5},
	}
}

// Bind returns the view of the backend for one browser session.
func (m *Memory) Bind(tokens TokenSource) *MemorySession {
	return &MemorySession{memory: m, tokens: tokens}
}

// SetKeycloakParams makes the mock backend advertise a Keycloak realm.
func (m *Memory) SetKeycloakParams(params *domain.KeycloakParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.KeycloakParams = params
}

// MemorySession implements domain.SillAPI over a Memory backend.
type MemorySession struct {
	memory *Memory
	tokens TokenSource
}

var _ domain.SillAPI = (*MemorySession)(nil)

func (s *MemorySession) loggedIn() bool {
	return s.tokens != nil && s.tokens.IsLoggedIn()
}

// authorize fetches an access token the way the HTTP client does before an
// authenticated call.
func (s *MemorySession) authorize(ctx context.Context) error {
	if !s.loggedIn() {
		return domain.ErrNotAuthenticated
	}
	_, err := s.tokens.AccessToken(ctx)
	return err
}

func (s *MemorySession) CurrentUser(context.Context) (*domain.User, error) {
	if !s.loggedIn() {
		return nil, nil
	}
	s.memory.mu.RLock()
	defer s.memory.mu.RUnlock()
	user := s.memory.user
	return &user, nil
}

func (s *MemorySession) UpdateAgencyName(ctx context.Context, newAgencyName string) error {
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.memory.mu.Lock()
	defer s.memory.mu.Unlock()
	s.memory.user.AgencyName = newAgencyName
	if !slices.Contains(s.memory.agencyNames, newAgencyName) {
		s.memory.agencyNames = append(s.memory.agencyNames, newAgencyName)
	}
	return nil
}

func (s *MemorySession) UpdateEmail(ctx context.Context, newEmail string) error {
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.memory.mu.Lock()
	defer s.memory.mu.Unlock()
	s.memory.user.Email = newEmail
	return nil
}

func (s *MemorySession) AllowedEmailRegexp(context.Context) (string, error) {
	s.memory.mu.RLock()
	defer s.memory.mu.RUnlock()
	return s.memory.emailPattern, nil
}

func (s *MemorySession) AgencyNames(context.Context) ([]string, error) {
	s.memory.mu.RLock()
	defer s.memory.mu.RUnlock()
	return slices.Clone(s.memory.agencyNames), nil
}

func (s *MemorySession) ServiceConfiguration(context.Context) (*domain.ServiceConfiguration, error) {
	s.memory.mu.RLock()
	defer s.memory.mu.RUnlock()
	cfg := s.memory.config
	return &cfg, nil
}

func (s *MemorySession) Softwares(context.Context) ([]domain.Software, error) {
	s.memory.mu.RLock()
	defer s.memory.mu.RUnlock()
	return slices.Clone(s.memory.softwares), nil
}

func (s *MemorySession) UserSoftwareIDs(ctx context.Context) ([]int, error) {
	if !s.loggedIn() {
		return nil, nil
	}
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.memory.mu.RLock()
	defer s.memory.mu.RUnlock()
	return slices.Clone(s.memory.userSoftwareIDs), nil
}

func (s *MemorySession) APIVersion(context.Context) (string, error) {
	return "mock", nil
}
