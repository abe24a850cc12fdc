package renewal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
)

const RefreshPath = "/token/refresh"

// Minter signs internal tokens.
type Minter interface {
	Mint(subject, scope, email, name string) (string, signing.IssuedClaims, error)
}

// ProfileLookup supplies the scope granted at the subject's last login.
type ProfileLookup interface {
	Get(ctx context.Context, subject string) (*entity.Profile, error)
}

type Handler struct {
	svc      *RenewalService
	minter   Minter
	profiles ProfileLookup
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewHandler(svc *RenewalService, minter Minter, profiles ProfileLookup, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, minter: minter, profiles: profiles, validate: validator.New(), logger: logger}
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=4096"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh renews the upstream credential behind a refresh token and answers
// with a newly signed internal token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RefreshRequest
	if err := dec.Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refreshToken is required"})
		return
	}

	cred, err := h.svc.RenewByRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeRenewalError(w, err)
		return
	}

	scope := ""
	p, err := h.profiles.Get(r.Context(), cred.Subject)
	switch {
	case err == nil:
		scope = p.Scope
	case errors.Is(err, profile.ErrProfileNotFound):
		h.logger.Debugw("no profile for renewed subject", "sub", cred.Subject)
	default:
		h.writeRenewalError(w, fmt.Errorf("%w: %w", ErrCredentialStoreUnavailable, err))
		return
	}

	token, _, err := h.minter.Mint(cred.Subject, scope, cred.Email, cred.DisplayName)
	if err != nil {
		h.logger.Errorw("mint renewed token", "sub", cred.Subject, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	metrics.RecordMint("refresh")
	h.writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(signing.TokenLifetime.Seconds()),
	})
}

func (h *Handler) writeRenewalError(w http.ResponseWriter, err error) {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrUnknownRefreshToken), errors.Is(err, ErrUnknownSubject):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_refresh_token"})
	case errors.Is(err, ErrNoRefreshTokenAvailable):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login_required"})
	case errors.As(err, &upstream):
		if upstream.Status >= 500 {
			sentry.CaptureException(err)
		}
		h.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":          "upstream_refresh_failed",
			"upstream_error": json.RawMessage(safeJSON(upstream.Body)),
		})
	case errors.Is(err, ErrUpstreamRefreshFailed):
		sentry.CaptureException(err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_refresh_failed"})
	case errors.Is(err, ErrCredentialStoreUnavailable):
		sentry.CaptureException(err)
		h.logger.Errorw("credential store unavailable", "err", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "credential_store_unavailable"})
	default:
		sentry.CaptureException(err)
		h.logger.Errorw("renewal failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// safeJSON returns body when it is valid JSON, otherwise body as a JSON string.
func safeJSON(body string) []byte {
	if json.Valid([]byte(body)) {
		return []byte(body)
	}
	b, _ := json.Marshal(body)
	return b
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
