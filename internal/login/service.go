package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	credentialentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	profileentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
)

var ErrIncompleteResult = errors.New("login result is missing a subject or access token")

// Store persists the outcome of a login. Both records commit together or not at all.
type Store interface {
	SaveLogin(ctx context.Context, cred *credentialentity.Credential, prof *profileentity.Profile) error
}

// Minter signs internal tokens.
type Minter interface {
	Mint(subject, scope, email, name string) (string, signing.IssuedClaims, error)
}

// LoginService completes a verified upstream login.
type LoginService struct {
	store       Store
	minter      Minter
	frontendURL string
	now         func() time.Time
	logger      *zap.SugaredLogger
}

func NewLoginService(store Store, minter Minter, frontendURL string, logger *zap.SugaredLogger) *LoginService {
	return &LoginService{
		store:       store,
		minter:      minter,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
		logger:      logger,
	}
}

// Complete runs once per login: it mints the internal token, persists the
// credential and profile in one transaction and returns the front end URL
// carrying the token in its fragment. Any failure leaves the store as it was.
func (s *LoginService) Complete(ctx context.Context, res *Result) (string, error) {
	if res == nil || res.Subject == "" || res.AccessToken == "" {
		return "", ErrIncompleteResult
	}
	scope := signing.JoinScopes(res.Scopes)

	token, claims, err := s.minter.Mint(res.Subject, scope, res.Email, res.Name)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}

	cred := &credentialentity.Credential{
		Subject:     res.Subject,
		Email:       res.Email,
		DisplayName: res.Name,
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
	}
	if res.RefreshToken != "" {
		rt := res.RefreshToken
		cred.RefreshToken = &rt
	}
	prof := profile.NewProfile(res.Subject, res.Email, res.Name, scope, s.now())

	if err := s.store.SaveLogin(ctx, cred, prof); err != nil {
		return "", fmt.Errorf("save login: %w", err)
	}

	metrics.RecordMint("login")
	s.logger.Infow("login completed",
		"sub", res.Subject,
		"scope", scope,
		"has_refresh_token", cred.RefreshToken != nil,
		"token_expires_at", claims.ExpiresAt.Time,
	)
	return s.frontendURL + "/index.html#access_token=" + token, nil
}
