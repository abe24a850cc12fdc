package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("OAUTH_ISSUER", "https://auth.example.com")
	t.Setenv("FRONTEND_BASE_URL", "https://app.example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "https://auth.example.com/login/oauth2/code/google")
	t.Setenv("SIGNING_KEY_FILE", "/etc/auth/signing.pem")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8431", c.Addr)
	assert.Equal(t, "https://accounts.google.com", c.Google.IssuerURL)
	assert.Equal(t, []string{"openid", "email", "profile"}, c.Google.Scopes)
	assert.Equal(t, 2*time.Second, c.UpstreamTimeout)
	assert.Equal(t, 30, c.Retention.Days)
	assert.Zero(t, c.Retention.PurgeInterval)
	assert.Equal(t, 500, c.Retention.BatchSize)
	assert.InDelta(t, 1.0, c.RefreshLimit.RPS, 0)
	assert.Equal(t, 5, c.RefreshLimit.Burst)
	assert.True(t, c.RunMigrations)
	assert.True(t, c.SecureCookies())

	assert.Equal(t, "/etc/auth/signing.pem", c.KeyConfig().KeyFile)
	assert.Equal(t, "https://oauth2.googleapis.com/token", c.UpstreamConfig("https://oauth2.googleapis.com/token").TokenURL)
	assert.Equal(t, "cid", c.ProviderConfig().ClientID)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GOOGLE_SCOPES", "openid,email")
	t.Setenv("UPSTREAM_TIMEOUT_MS", "1500")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com https://b.example.com")
	t.Setenv("CREDENTIAL_PURGE_INTERVAL_MINUTES", "60")
	t.Setenv("RUN_MIGRATIONS", "0")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "email"}, c.Google.Scopes)
	assert.Equal(t, 1500*time.Millisecond, c.UpstreamTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.CORSOrigins)
	assert.Equal(t, time.Hour, c.Retention.PurgeInterval)
	assert.False(t, c.RunMigrations)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, c.TrustedProxies)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		env   map[string]string
		field string
	}{
		"missing issuer":     {env: map[string]string{"OAUTH_ISSUER": ""}, field: "Config.Issuer"},
		"issuer not a url":   {env: map[string]string{"OAUTH_ISSUER": "auth"}, field: "Config.Issuer"},
		"no signing key":     {env: map[string]string{"SIGNING_KEY_FILE": ""}, field: "Config.Signing.KeyFile"},
		"keystore no secret": {env: map[string]string{"SIGNING_KEY_FILE": "", "SIGNING_KEYSTORE_FILE": "/k.p12"}, field: "Config.Signing.KeystorePassword"},
		"bad addr":           {env: map[string]string{"HTTP_ADDR": "nowhere"}, field: "Config.Addr"},
		"zero burst":         {env: map[string]string{"REFRESH_RATE_LIMIT_BURST": "0"}, field: "Config.RefreshLimit.Burst"},
		"bad proxy":          {env: map[string]string{"TRUSTED_PROXIES": "edge.local"}, field: "Config.TrustedProxies[0]"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestKeystoreAloneIsEnough(t *testing.T) {
	setRequired(t)
	t.Setenv("SIGNING_KEY_FILE", "")
	t.Setenv("SIGNING_KEYSTORE_FILE", "/etc/auth/keystore.p12")
	t.Setenv("SIGNING_KEYSTORE_PASSWORD", "changeit")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/etc/auth/keystore.p12", c.KeyConfig().KeystoreFile)
}
