// Package i18n negotiates the UI language of a request.
package i18n

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/codegouvfr/sill-web/internal/domain"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "sill_lang"
)

var (
	supported = []language.Tag{language.French, language.English}
	matcher   = language.NewMatcher(supported)
)

// Default is the language used when nothing in the request matches.
func Default() domain.Language {
	return domain.LanguageFrench
}

// Parse maps a language tag such as "en-GB" to a supported language.
func Parse(value string) (domain.Language, bool) {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", false
	}
	switch lang := domain.Language(base.String()); lang {
	case domain.LanguageEnglish, domain.LanguageFrench:
		return lang, true
	}
	return "", false
}

// Resolve determines the language of r: lang query parameter, then cookie,
// then Accept-Language. The bool reports whether the query parameter should
// be persisted as a cookie.
func Resolve(r *http.Request) (domain.Language, bool) {
	if r == nil {
		return Default(), false
	}

	if lang, ok := Parse(r.URL.Query().Get(LangParam)); ok {
		return lang, true
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if lang, ok := Parse(cookie.Value); ok {
			return lang, false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, confidence := matcher.Match(tags...)
			if confidence != language.No {
				base, _ := supported[idx].Base()
				return domain.Language(base.String()), false
			}
		}
	}

	return Default(), false
}

// SetCookie persists the selected language on the response.
func SetCookie(w http.ResponseWriter, lang domain.Language) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    string(lang),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey struct{}

func WithLanguage(ctx context.Context, lang domain.Language) context.Context {
	return context.WithValue(ctx, contextKey{}, lang)
}

// FromContext returns the request language, Default() when unset.
func FromContext(ctx context.Context) domain.Language {
	if lang, ok := ctx.Value(contextKey{}).(domain.Language); ok {
		return lang
	}
	return Default()
}
