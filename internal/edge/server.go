package edge

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
)

// KeySource resolves the authority's verification keys from the configured
// JWKS URL or PEM file. The returned closer stops background refreshes. When
// the JWKS cannot be fetched yet, the error comes back together with a usable
// source that retries on the first lookup.
func KeySource(ctx context.Context, cfg Config) (guard.KeySource, func(), error) {
	if cfg.PublicKeyFile != "" {
		keys, err := guard.LoadStaticKey(cfg.PublicKeyFile, cfg.KeyID)
		if err != nil {
			return nil, nil, err
		}
		return keys, func() {}, nil
	}
	remote := guard.NewRemoteKeys(cfg.JWKSURL, cfg.JWKSTimeout)
	if err := remote.Start(ctx); err != nil {
		return remote, remote.Close, fmt.Errorf("jwks %s: %w", cfg.JWKSURL, err)
	}
	return remote, remote.Close, nil
}

// NewHandler assembles the edge: guard first, then proxy or static files.
func NewHandler(cfg Config, keys guard.KeySource, logger *zap.SugaredLogger) (http.Handler, error) {
	policy, err := cfg.BuildPolicy()
	if err != nil {
		return nil, fmt.Errorf("edge policy: %w", err)
	}
	proxy, err := NewProxy(cfg.Routes, cfg.StaticDir, logger)
	if err != nil {
		return nil, err
	}
	g := guard.New("edge", policy, guard.NewVerifier(keys, cfg.Issuer), logger)

	var handler http.Handler = proxy
	handler = g.Middleware(handler)
	handler = router.CORSMiddleware(cfg.CORSOrigins)(handler)
	handler = router.SecurityHeadersMiddleware()(handler)
	handler = router.LoggingMiddleware(logger)(handler)
	handler = router.RecoverMiddleware(logger)(handler)
	handler = router.RequestIDMiddleware()(handler)
	return handler, nil
}
