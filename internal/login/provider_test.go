package login

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-1"
	testNonce    = "nonce-1"
)

// newFakeIssuer serves discovery, JWKS and a token endpoint that accepts the
// code "good".
func newFakeIssuer(t *testing.T, refreshToken string) *httptest.Server {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/auth",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig",
		}}})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good" || r.Form.Get("client_id") != testClientID || r.Form.Get("code_verifier") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		now := time.Now()
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":   srv.URL,
			"aud":   testClientID,
			"sub":   "google-123",
			"email": "alice@example.com",
			"name":  "Alice",
			"nonce": testNonce,
			"iat":   now.Unix(),
			"exp":   now.Add(time.Hour).Unix(),
		})
		tok.Header["kid"] = "k1"
		idToken, err := tok.SignedString(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := map[string]any{
			"access_token": "upstream-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
			"scope":        "openid email profile",
		}
		if refreshToken != "" {
			resp["refresh_token"] = refreshToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, issuer string) *GoogleProvider {
	t.Helper()
	p, err := NewGoogleProvider(context.Background(), ProviderConfig{
		IssuerURL:    issuer,
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "https://auth.example.com" + CallbackPath,
	})
	require.NoError(t, err)
	return p
}

func TestGoogleProviderAuthCodeURL(t *testing.T) {
	t.Parallel()

	srv := newFakeIssuer(t, "rt")
	p := newTestProvider(t, srv.URL)
	assert.Equal(t, srv.URL+"/token", p.TokenURL())

	u, err := url.Parse(p.AuthCodeURL("state-1", testNonce, "verifier-verifier-verifier-verifier-verifier"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, testNonce, q.Get("nonce"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "openid")
}

func TestGoogleProviderExchange(t *testing.T) {
	t.Parallel()

	srv := newFakeIssuer(t, "upstream-refresh")
	p := newTestProvider(t, srv.URL)

	res, err := p.Exchange(context.Background(), "good", testNonce, "verifier")
	require.NoError(t, err)
	assert.Equal(t, "google-123", res.Subject)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.Equal(t, "Alice", res.Name)
	assert.Equal(t, []string{"openid", "email", "profile"}, res.Scopes)
	assert.Equal(t, "upstream-refresh", res.RefreshToken)
	assert.NotEmpty(t, res.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)
}

func TestGoogleProviderExchangeFailures(t *testing.T) {
	t.Parallel()

	srv := newFakeIssuer(t, "")
	p := newTestProvider(t, srv.URL)

	_, err := p.Exchange(context.Background(), "bad", testNonce, "verifier")
	assert.ErrorIs(t, err, ErrExchangeFailed)

	_, err = p.Exchange(context.Background(), "good", "other-nonce", "verifier")
	assert.ErrorIs(t, err, ErrNonceMismatch)

	res, err := p.Exchange(context.Background(), "good", testNonce, "verifier")
	require.NoError(t, err)
	assert.Empty(t, res.RefreshToken)
}

func TestNewGoogleProviderRequiresOpenID(t *testing.T) {
	t.Parallel()

	_, err := NewGoogleProvider(context.Background(), ProviderConfig{IssuerURL: "http://127.0.0.1:1", Scopes: []string{"email"}})
	assert.Error(t, err)
}
