package keycloak

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codegouvfr/sill-web/internal/domain"
)

// Claims are the ID-token claims the catalog reads. agencyName is a custom
// user attribute mapped into the token by the realm.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	AgencyName string `json:"agencyName"`
	Locale     string `json:"locale"`
}

// ParseIDToken decodes an ID token received over the back channel from the
// token endpoint; its signature is not verified again. The issuer must match.
func ParseIDToken(raw, issuer string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}
	if claims.Issuer != issuer {
		return nil, fmt.Errorf("id token issuer %q does not match %q", claims.Issuer, issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("id token has no subject")
	}
	return &claims, nil
}

func (c *Claims) User() *domain.User {
	return &domain.User{
		ID:         c.Subject,
		Email:      c.Email,
		AgencyName: c.AgencyName,
		Locale:     c.Locale,
	}
}
