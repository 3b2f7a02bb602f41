package domain

import (
	"encoding/json"
	"fmt"
)

// Language is a UI language supported by the catalog.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
)

// FallbackLanguages is the lookup order used when a translation is missing.
var FallbackLanguages = []Language{LanguageEnglish, LanguageFrench}

// LocalizedString is either a single untranslated string (stored under the
// empty language) or a set of per-language translations.
type LocalizedString map[Language]string

// NewLocalizedString returns a LocalizedString that resolves to s for every language.
func NewLocalizedString(s string) LocalizedString {
	return LocalizedString{"": s}
}

// Resolve returns the best translation for lang.
func (l LocalizedString) Resolve(lang Language) string {
	if s, ok := l[lang]; ok {
		return s
	}
	if s, ok := l[""]; ok {
		return s
	}
	for _, fallback := range FallbackLanguages {
		if s, ok := l[fallback]; ok {
			return s
		}
	}
	for _, s := range l {
		return s
	}
	return ""
}

func (l LocalizedString) MarshalJSON() ([]byte, error) {
	if s, ok := l[""]; ok && len(l) == 1 {
		return json.Marshal(s)
	}
	return json.Marshal(map[Language]string(l))
}

func (l *LocalizedString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = NewLocalizedString(single)
		return nil
	}

	var translations map[Language]string
	if err := json.Unmarshal(data, &translations); err != nil {
		return fmt.Errorf("localized string must be a string or an object: %w", err)
	}
	*l = translations
	return nil
}

// KeycloakParams locate the Keycloak realm the backend authenticates against.
type KeycloakParams struct {
	URL      string `json:"url"`
	Realm    string `json:"realm"`
	ClientID string `json:"clientId"`
}

// ServiceConfiguration is what the backend publishes about its identity setup.
// KeycloakParams is nil when the backend does not use Keycloak.
type ServiceConfiguration struct {
	TermsOfServiceURL LocalizedString `json:"termsOfServicesUrl"`
	KeycloakParams    *KeycloakParams `json:"keycloakParams,omitempty"`
}
