package guard

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
)

// Guard enforces one policy table in front of a service's handlers.
type Guard struct {
	service  string
	policy   *Policy
	verifier *Verifier
	logger   *zap.SugaredLogger
}

// New returns a guard; service labels its logs and metrics.
func New(service string, policy *Policy, verifier *Verifier, logger *zap.SugaredLogger) *Guard {
	return &Guard{service: service, policy: policy, verifier: verifier, logger: logger}
}

// Authenticate verifies the request's bearer token.
func (g *Guard) Authenticate(r *http.Request) (*Identity, error) {
	raw, err := BearerToken(r)
	if err != nil {
		return nil, err
	}
	return g.verifier.Verify(r.Context(), raw)
}

// Middleware lets public requests through untouched and requires a valid
// token everywhere else. A rejected request never reaches next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.policy.Evaluate(r.Method, r.URL.Path) == Permit {
			metrics.RecordGuard(g.service, "public")
			next.ServeHTTP(w, r)
			return
		}

		identity, err := g.Authenticate(r)
		if err != nil {
			code := ErrorCode(err)
			metrics.RecordGuard(g.service, code)
			if !errors.Is(err, ErrAuthenticationMissing) {
				g.logger.Infow("token rejected", "service", g.service, "path", r.URL.Path, "reason", code, "error", err)
			}
			WriteUnauthorized(w, code)
			return
		}

		metrics.RecordGuard(g.service, "authenticated")
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WriteUnauthorized writes the 401 body shared by every guard.
func WriteUnauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
