package renewal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUpstreamSendsRefreshGrant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			http.Error(w, "bad request shape", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "refresh_token" ||
			r.PostForm.Get("refresh_token") != "rt" ||
			r.PostForm.Get("client_id") != "cid" ||
			r.PostForm.Get("client_secret") != "secret" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"idt","access_token":"at","expires_in":3599,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	up := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL, ClientID: "cid", ClientSecret: "secret"})
	tok, err := up.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "idt", tok.AccessToken)
	assert.Equal(t, 3599*time.Second, tok.ExpiresIn)
	assert.Empty(t, tok.RefreshToken)
}

func TestHTTPUpstreamFallsBackToAccessToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt2","expires_in":60}`))
	}))
	defer srv.Close()

	tok, err := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt2", tok.RefreshToken)
}

func TestHTTPUpstreamNon2xxIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
	require.ErrorIs(t, err, ErrUpstreamRefreshFailed)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.Status)
	assert.Equal(t, `{"error":"invalid_grant"}`, ue.Body)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPUpstreamRejectsIncompleteResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no token":      `{"expires_in":60}`,
		"no expiry":     `{"access_token":"x"}`,
		"not json":      `<html>`,
		"zero expiry":   `{"access_token":"x","expires_in":0}`,
		"id token only": `{"id_token":"x","expires_in":60}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
			assert.ErrorIs(t, err, ErrUpstreamRefreshFailed)
		})
	}
}

func TestHTTPUpstreamCapsExpiresIn(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","expires_in":10000000000}`))
	}))
	defer srv.Close()

	tok, err := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, maxUpstreamLifetime, tok.ExpiresIn)
}

func TestHTTPUpstreamIgnoresEchoedRefreshToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":60}`))
	}))
	defer srv.Close()

	tok, err := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Empty(t, tok.RefreshToken)
}

func TestHTTPUpstreamTruncatesLargeErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	_, err := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL}).Refresh(context.Background(), "rt")
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Len(t, ue.Body, maxErrorBody)
}

func TestHTTPUpstreamTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	up := NewHTTPUpstream(UpstreamConfig{TokenURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := up.Refresh(context.Background(), "rt")
	assert.ErrorIs(t, err, ErrUpstreamRefreshFailed)
}
