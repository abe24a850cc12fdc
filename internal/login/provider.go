package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const GoogleIssuer = "https://accounts.google.com"

var (
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	ErrIDTokenInvalid = errors.New("id token invalid")
	ErrNonceMismatch  = errors.New("id token nonce does not match expected value")
	ErrNonceMissing   = errors.New("id token missing nonce claim")
	ErrMissingIDToken = errors.New("token response carries no id_token")
	ErrMissingSubject = errors.New("id token carries no subject")
)

// Result is what a completed upstream login yields.
type Result struct {
	Subject string
	Email   string
	Name    string
	// Scopes are the granted authority names.
	Scopes []string
	// AccessToken is the upstream bearer credential cached for the subject.
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
}

// GoogleProvider drives the authorization code flow against an OIDC issuer.
type GoogleProvider struct {
	oauth2     *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// NewGoogleProvider runs OIDC discovery against cfg.IssuerURL.
func NewGoogleProvider(ctx context.Context, cfg ProviderConfig) (*GoogleProvider, error) {
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = GoogleIssuer
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		return nil, errors.New("openid scope is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}
	endpoint := provider.Endpoint()
	return &GoogleProvider{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   endpoint.AuthURL,
				TokenURL:  endpoint.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient: httpClient,
	}, nil
}

// TokenURL is the discovered token endpoint.
func (p *GoogleProvider) TokenURL() string { return p.oauth2.Endpoint.TokenURL }

// AuthCodeURL asks for offline access so the provider issues a refresh token.
func (p *GoogleProvider) AuthCodeURL(state, nonce, verifier string) string {
	return p.oauth2.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange redeems code and verifies the returned ID token.
func (p *GoogleProvider) Exchange(ctx context.Context, code, nonce, verifier string) (*Result, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, ErrMissingIDToken
	}

	idt, err := p.verifier.Verify(oidc.ClientContext(ctx, p.httpClient), rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDTokenInvalid, err)
	}
	if idt.Nonce == "" {
		return nil, ErrNonceMissing
	}
	if idt.Nonce != nonce {
		return nil, ErrNonceMismatch
	}
	if idt.Subject == "" {
		return nil, ErrMissingSubject
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDTokenInvalid, err)
	}

	scopes := p.oauth2.Scopes
	if granted, _ := tok.Extra("scope").(string); strings.TrimSpace(granted) != "" {
		scopes = strings.Fields(granted)
	}

	return &Result{
		Subject:      idt.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		Scopes:       scopes,
		AccessToken:  rawID,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    idt.Expiry,
	}, nil
}
