package signing

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	JWKSPath      = "/oauth2/jwks"
	DiscoveryPath = "/.well-known/openid-configuration"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Discovery publishes the endpoints a verifier or client needs.
func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimRight(h.svc.Issuer(), "/")
	out := map[string]any{
		"issuer":                                base,
		"jwks_uri":                              base + JWKSPath,
		"token_endpoint":                        base + "/token/refresh",
		"userinfo_endpoint":                     base + "/api/userinfo",
		"authorization_endpoint":                base + "/oauth2/authorization/google",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"subject_types_supported":               []string{"public"},
		"response_types_supported":              []string{"token"},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.JWKS()
	if err != nil {
		h.logger.Errorw("build jwks", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_ = json.NewEncoder(w).Encode(set)
}
