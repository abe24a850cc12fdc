package router

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/login"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/maintenance"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/renewal"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
)

const (
	HealthPath    = "/health"
	MetricsPath   = "/metrics"
	UserTokenPath = "/user-token"
	UserInfoPath  = "/api/userinfo"
)

// Deps are the handlers and collaborators the authority serves.
type Deps struct {
	Logger         *zap.SugaredLogger
	DB             *sqlx.DB
	Guard          *guard.Guard
	Signing        *signing.Handler
	Login          *login.Handler
	Renewal        *renewal.Handler
	Profile        *profile.Handler
	Maintenance    *maintenance.Handler
	CORSOrigins    []string
	RefreshLimit   rate.Limit
	RefreshBurst   int
	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies []netip.Prefix
}

// AuthorityPolicy is the guard table of the authority service. Everything not
// listed requires a token.
func AuthorityPolicy() *guard.Policy {
	return guard.MustPolicy(
		guard.Preflight,
		guard.PublicMethod(http.MethodGet, HealthPath),
		guard.PublicMethod(http.MethodGet, MetricsPath),
		guard.PublicMethod(http.MethodGet, login.BeginPath),
		guard.PublicMethod(http.MethodGet, login.CallbackPath),
		guard.PublicMethod(http.MethodGet, "/.well-known/**"),
		guard.PublicMethod(http.MethodGet, signing.JWKSPath),
		guard.PublicMethod(http.MethodPost, renewal.RefreshPath),
		// cron secret is checked by the handler
		guard.Public("/internal/maintenance/**"),
	)
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := d.DB.PingContext(ctx); err != nil {
				d.Logger.Warnw("health check: database unreachable", "err", err)
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET "+MetricsPath, metrics.Handler())

	// signing authority
	mux.HandleFunc("GET "+signing.JWKSPath, d.Signing.JWKS)
	mux.HandleFunc("GET "+signing.DiscoveryPath, d.Signing.Discovery)

	// login
	mux.HandleFunc("GET "+login.BeginPath, d.Login.Begin)
	mux.HandleFunc("GET "+login.CallbackPath, d.Login.Callback)
	mux.HandleFunc("GET "+UserTokenPath, d.Login.UserToken)

	// renewal
	limiter := NewRateLimiter(d.RefreshLimit, d.RefreshBurst, d.TrustedProxies)
	mux.Handle("POST "+renewal.RefreshPath, limiter.Middleware(http.HandlerFunc(d.Renewal.Refresh)))

	mux.HandleFunc("GET "+UserInfoPath, d.Profile.UserInfo)

	if d.Maintenance != nil {
		mux.HandleFunc("GET "+maintenance.CleanupPath, d.Maintenance.Cleanup)
		mux.HandleFunc("POST "+maintenance.CleanupPath, d.Maintenance.Cleanup)
	}

	var handler http.Handler = mux
	handler = d.Guard.Middleware(handler)
	handler = CORSMiddleware(d.CORSOrigins)(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	handler = RecoverMiddleware(d.Logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
