package renewal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxErrorBody = 4 << 10
	// maxUpstreamLifetime caps what a provider may claim for expires_in.
	maxUpstreamLifetime = 24 * time.Hour
)

type UpstreamConfig struct {
	// TokenURL is the discovered token endpoint of the identity provider.
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Timeout bounds the whole call; dialing is capped at half of it.
	Timeout time.Duration
}

// UpstreamToken is the parsed refresh response. RefreshToken is set only when
// the provider rotated it.
type UpstreamToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// HTTPUpstream redeems refresh tokens at the provider token endpoint.
// It never retries.
type HTTPUpstream struct {
	oauth2 *oauth2.Config
	client *http.Client
}

func NewHTTPUpstream(cfg UpstreamConfig) *HTTPUpstream {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout / 2}
	return &HTTPUpstream{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   cfg.Timeout / 2,
				ResponseHeaderTimeout: cfg.Timeout,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Refresh exchanges refreshToken for a new upstream token. The ID token is
// preferred over the access token when both are present.
func (u *HTTPUpstream) Refresh(ctx context.Context, refreshToken string) (*UpstreamToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, u.client)
	// an access-token-less token is never valid, so this always hits the endpoint
	tok, err := u.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			body := re.Body
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return nil, &UpstreamError{Status: re.Response.StatusCode, Body: string(body)}
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamRefreshFailed, err)
	}

	token, _ := tok.Extra("id_token").(string)
	if token == "" {
		token = tok.AccessToken
	}
	if token == "" {
		return nil, fmt.Errorf("%w: response carries no token", ErrUpstreamRefreshFailed)
	}
	if tok.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: response carries no expires_in", ErrUpstreamRefreshFailed)
	}
	expiresIn := maxUpstreamLifetime
	if tok.ExpiresIn < int64(maxUpstreamLifetime/time.Second) {
		expiresIn = time.Duration(tok.ExpiresIn) * time.Second
	}

	out := &UpstreamToken{AccessToken: token, ExpiresIn: expiresIn}
	// the library echoes the old refresh token back when none was issued
	if tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	return out, nil
}
