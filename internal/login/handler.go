package login

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
)

const (
	BeginPath    = "/oauth2/authorization/google"
	CallbackPath = "/login/oauth2/code/google"
	stateCookie  = "oauth2_login_state"
	stateMaxAge  = 600
)

// Provider is the upstream identity provider.
type Provider interface {
	AuthCodeURL(state, nonce, verifier string) string
	Exchange(ctx context.Context, code, nonce, verifier string) (*Result, error)
}

// Handler serves login initiation, the provider callback and /user-token.
type Handler struct {
	provider     Provider
	svc          *LoginService
	minter       Minter
	secureCookie bool
	logger       *zap.SugaredLogger
}

func NewHandler(provider Provider, svc *LoginService, minter Minter, secureCookie bool, logger *zap.SugaredLogger) *Handler {
	return &Handler{provider: provider, svc: svc, minter: minter, secureCookie: secureCookie, logger: logger}
}

// Begin stores state, nonce and the PKCE verifier in a short-lived cookie and
// redirects the browser to the provider.
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    strings.Join([]string{state, nonce, verifier}, "."),
		Path:     "/",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state, nonce, verifier), http.StatusFound)
}

// Callback completes the login and redirects to the front end with the token
// in the URL fragment.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	saved := h.popState(w, r)

	if providerErr := q.Get("error"); providerErr != "" {
		metrics.LoginsCompleted.WithLabelValues("provider_error").Inc()
		h.logger.Infow("provider rejected login", "error", providerErr, "description", q.Get("error_description"))
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": providerErr})
		return
	}
	state, nonce, verifier, ok := splitState(saved)
	if !ok || subtle.ConstantTimeCompare([]byte(state), []byte(q.Get("state"))) != 1 {
		metrics.LoginsCompleted.WithLabelValues("invalid_state").Inc()
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_state"})
		return
	}
	code := q.Get("code")
	if code == "" {
		metrics.LoginsCompleted.WithLabelValues("invalid_request").Inc()
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_code"})
		return
	}

	res, err := h.provider.Exchange(r.Context(), code, nonce, verifier)
	if err != nil {
		metrics.LoginsCompleted.WithLabelValues("exchange_failed").Inc()
		h.logger.Warnw("login exchange failed", "err", err)
		if errors.Is(err, ErrExchangeFailed) {
			h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "login_failed"})
			return
		}
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_id_token"})
		return
	}

	redirect, err := h.svc.Complete(r.Context(), res)
	if err != nil {
		metrics.LoginsCompleted.WithLabelValues("failed").Inc()
		h.logger.Errorw("login completion failed", "sub", res.Subject, "err", err)
		sentry.CaptureException(err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "login_unavailable"})
		return
	}
	metrics.LoginsCompleted.WithLabelValues("ok").Inc()
	http.Redirect(w, r, redirect, http.StatusFound)
}

// UserToken returns a freshly signed token for the verified caller.
func (h *Handler) UserToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := guard.IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	token, _, err := h.minter.Mint(identity.Subject, identity.Scope, identity.Email, identity.Name)
	if err != nil {
		h.logger.Errorw("mint user token", "sub", identity.Subject, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	metrics.RecordMint("user_token")
	h.writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (h *Handler) popState(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(stateCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Value
}

func splitState(v string) (state, nonce, verifier string, ok bool) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
