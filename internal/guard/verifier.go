package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks internal tokens against the authority's public key. It is
// the only component outside the authority that trusts a token.
type Verifier struct {
	keys   KeySource
	issuer string
	now    func() time.Time
}

// NewVerifier builds a verifier. An empty issuer skips the issuer check.
func NewVerifier(keys KeySource, issuer string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, now: time.Now}
}

// WithClock replaces the time source used for expiry checks.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify parses raw, checks its RS256 signature against the key named by its
// kid header and validates expiry. A token past its expiry is rejected even
// when the signature is valid.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrAuthenticationMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		return v.keys.PublicKey(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrClaimsInvalid)
	}
	return claimsToIdentity(claims, raw), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrAuthenticationMissing, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrClaimsInvalid, err)
	}
}

func claimsToIdentity(claims jwt.MapClaims, raw string) *Identity {
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	return &Identity{
		Subject: str("sub"),
		Scope:   str("scope"),
		Email:   str("email"),
		Name:    str("name"),
		Claims:  claims,
		Token:   raw,
	}
}

// BearerToken extracts the token from an Authorization header. The scheme is
// case-insensitive.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrAuthenticationMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrAuthenticationMissing
	}
	return strings.TrimSpace(token), nil
}
