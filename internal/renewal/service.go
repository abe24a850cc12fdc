package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/entity"
	credentialrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
)

// Store is the credential persistence renewal reads and writes.
type Store interface {
	FindBySubject(ctx context.Context, subject string) (*entity.Credential, error)
	FindByRefreshToken(ctx context.Context, token string) (*entity.Credential, error)
	Upsert(ctx context.Context, c *entity.Credential) (*entity.Credential, error)
}

// Upstream refreshes tokens at the identity provider.
type Upstream interface {
	Refresh(ctx context.Context, refreshToken string) (*UpstreamToken, error)
}

// RenewalService keeps a subject's upstream token usable. Renewals for one
// subject are collapsed into a single upstream call.
type RenewalService struct {
	store    Store
	upstream Upstream
	group    singleflight.Group
	now      func() time.Time
	logger   *zap.SugaredLogger
}

func NewRenewalService(store Store, upstream Upstream, logger *zap.SugaredLogger) *RenewalService {
	return &RenewalService{store: store, upstream: upstream, now: time.Now, logger: logger}
}

// RenewBySubject returns the credential holding a usable access token for
// subject. A cached token that has not expired is returned without calling
// the provider. A failed renewal leaves the stored credential untouched.
func (s *RenewalService) RenewBySubject(ctx context.Context, subject string) (*entity.Credential, error) {
	// the upstream call runs to completion or timeout even if this caller leaves
	detached := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(subject, func() (any, error) {
		return s.renew(detached, subject)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.Credential), nil
}

// RenewByRefreshToken renews the credential that owns refreshToken.
func (s *RenewalService) RenewByRefreshToken(ctx context.Context, refreshToken string) (*entity.Credential, error) {
	cred, err := s.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, credentialrepo.ErrNotFound) {
			metrics.RecordRenewal("unknown_refresh_token")
			return nil, ErrUnknownRefreshToken
		}
		metrics.RecordRenewal("store_unavailable")
		return nil, fmt.Errorf("%w: %w", ErrCredentialStoreUnavailable, err)
	}
	return s.RenewBySubject(ctx, cred.Subject)
}

func (s *RenewalService) renew(ctx context.Context, subject string) (*entity.Credential, error) {
	cred, err := s.store.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, credentialrepo.ErrNotFound) {
			metrics.RecordRenewal("unknown_subject")
			return nil, ErrUnknownSubject
		}
		metrics.RecordRenewal("store_unavailable")
		return nil, fmt.Errorf("%w: %w", ErrCredentialStoreUnavailable, err)
	}

	now := s.now()
	if cred.Fresh(now) {
		metrics.RecordRenewal("cached")
		return cred, nil
	}
	if !cred.Renewable() {
		metrics.RecordRenewal("no_refresh_token")
		return nil, ErrNoRefreshTokenAvailable
	}

	start := time.Now()
	tok, err := s.upstream.Refresh(ctx, *cred.RefreshToken)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.UpstreamRefreshDuration.WithLabelValues("error").Observe(elapsed)
		metrics.RecordRenewal("upstream_failed")
		s.logger.Warnw("upstream refresh failed", "sub", subject, "err", err)
		return nil, err
	}
	metrics.UpstreamRefreshDuration.WithLabelValues("ok").Observe(elapsed)

	updated := *cred
	updated.AccessToken = tok.AccessToken
	updated.ExpiresAt = now.Add(tok.ExpiresIn).UTC()
	if tok.RefreshToken != "" {
		rotated := tok.RefreshToken
		updated.RefreshToken = &rotated
	}
	saved, err := s.store.Upsert(ctx, &updated)
	if err != nil {
		metrics.RecordRenewal("store_unavailable")
		return nil, fmt.Errorf("%w: %w", ErrCredentialStoreUnavailable, err)
	}

	metrics.RecordRenewal("refreshed")
	s.logger.Infow("upstream token refreshed", "sub", subject, "expires_at", saved.ExpiresAt, "rotated", tok.RefreshToken != "")
	return saved, nil
}
