package edge

import (
	"net/http"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
)

// DefaultPolicy is the edge allowlist. Proxied API prefixes are not listed and
// therefore require a token.
func DefaultPolicy() *guard.Policy {
	return guard.MustPolicy(
		guard.Preflight,

		// SPA shell and assets
		guard.PublicMethod(http.MethodGet, "/"),
		guard.PublicMethod(http.MethodGet, "/*.html"),
		guard.PublicMethod(http.MethodGet, "/*.js"),
		guard.PublicMethod(http.MethodGet, "/*.css"),
		guard.PublicMethod(http.MethodGet, "/favicon.ico"),
		guard.PublicMethod(http.MethodGet, "/js/**"),
		guard.PublicMethod(http.MethodGet, "/images/**"),
		guard.PublicMethod(http.MethodGet, "/assets/**"),
		guard.PublicMethod(http.MethodGet, "/dashboard/**"),

		// login handshake
		guard.Public("/login/**"),
		guard.Public("/oauth2/**"),
		guard.Public("/oauth-service/oauth2/**"),
		guard.Public("/oauth-service/login/oauth2/**"),
		guard.Public("/oauth-service/.well-known/**"),
		// the authority verifies these itself
		guard.Public("/oauth-service/user-token"),
		guard.PublicMethod(http.MethodPost, "/oauth-service/token/refresh"),
	)
}
