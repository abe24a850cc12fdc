package signing

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Service is the signing authority: it holds the only private key and issues
// RS256 tokens. The public half is exposed as a key and as a JWKS.
type Service struct {
	keys   *KeyPair
	issuer string
	now    func() time.Time
}

func NewService(keys *KeyPair, issuer string) (*Service, error) {
	if keys == nil {
		return nil, ErrNoKeyConfigured
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	return &Service{keys: keys, issuer: issuer, now: time.Now}, nil
}

// WithClock replaces the time source used by Mint.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) Issuer() string { return s.issuer }

func (s *Service) KeyID() string { return s.keys.KeyID() }

// PublicKey returns the RSA public key for verification.
func (s *Service) PublicKey() *rsa.PublicKey { return s.keys.Public() }

// Sign serializes claims as an RS256 JWS carrying the key id header.
func (s *Service) Sign(claims IssuedClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.keys.KeyID()
	signed, err := tok.SignedString(s.keys.private)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Mint builds a fresh claim set for subject and signs it.
func (s *Service) Mint(subject, scope, email, name string) (string, IssuedClaims, error) {
	claims := NewClaims(s.issuer, subject, scope, email, name, s.now())
	token, err := s.Sign(claims)
	if err != nil {
		return "", IssuedClaims{}, err
	}
	return token, claims, nil
}

// JWKS returns a key set containing the public key.
func (s *Service) JWKS() (jwk.Set, error) {
	key, err := jwk.Import(s.keys.Public())
	if err != nil {
		return nil, fmt.Errorf("import public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, s.keys.KeyID()); err != nil {
		return nil, fmt.Errorf("set key id: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		return nil, fmt.Errorf("set algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("set key usage: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("add key: %w", err)
	}
	return set, nil
}
