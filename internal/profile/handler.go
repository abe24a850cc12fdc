package profile

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
)

// Handler exposes the caller's own identity.
type Handler struct {
	svc    *ProfileService
	logger *zap.SugaredLogger
}

func NewHandler(svc *ProfileService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// UserInfoResponse merges the verified token claims with the stored profile.
type UserInfoResponse struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	identity, ok := guard.IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	resp := UserInfoResponse{
		Subject: identity.Subject,
		Email:   identity.Email,
		Name:    identity.Name,
		Scope:   identity.Scope,
	}
	p, err := h.svc.Get(r.Context(), identity.Subject)
	switch {
	case err == nil:
		resp.Status = p.Status
	case errors.Is(err, ErrProfileNotFound):
		h.logger.Debugw("no profile for subject", "sub", identity.Subject)
	default:
		h.logger.Warnw("load profile failed", "sub", identity.Subject, "err", err)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
