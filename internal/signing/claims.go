package signing

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime is fixed for every internally issued token.
const TokenLifetime = 4 * time.Hour

// IssuedClaims is the claim set of an internal token.
type IssuedClaims struct {
	Scope string `json:"scope"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims builds the claim set for subject issued at now.
func NewClaims(issuer, subject, scope, email, name string, now time.Time) IssuedClaims {
	now = now.Truncate(time.Second)
	return IssuedClaims{
		Scope: scope,
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}
}

// JoinScopes renders granted authority names as a space-delimited scope.
func JoinScopes(scopes []string) string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}
