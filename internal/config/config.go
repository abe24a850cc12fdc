// Package config assembles the authority service settings from the
// environment and validates them before anything is started.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/login"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/renewal"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

type Google struct {
	IssuerURL    string   `validate:"required,url"`
	ClientID     string   `validate:"required"`
	ClientSecret string   `validate:"required"`
	RedirectURL  string   `validate:"required,url"`
	Scopes       []string `validate:"required,min=1"`
}

type Signing struct {
	KeyFile          string `validate:"required_without=KeystoreFile"`
	KeystoreFile     string `validate:"required_without=KeyFile"`
	KeystorePassword string `validate:"required_with=KeystoreFile"`
	KeyID            string
}

type Retention struct {
	Days          int           `validate:"min=1"`
	PurgeInterval time.Duration `validate:"min=0"`
	BatchSize     int           `validate:"min=1,max=10000"`
}

type RateLimit struct {
	RPS   float64 `validate:"gt=0"`
	Burst int     `validate:"min=1"`
}

// Config is everything cmd/api needs beyond the database and logger.
type Config struct {
	Addr            string `validate:"required,hostname_port"`
	Issuer          string `validate:"required,url"`
	FrontendBaseURL string `validate:"required,url"`
	Environment     string
	SentryDSN       string
	RunMigrations   bool
	UpstreamTimeout time.Duration `validate:"gt=0"`
	CORSOrigins     []string      `validate:"dive,required"`
	TrustedProxies  []string      `validate:"dive,cidr|ip"`
	CronSecret      string
	Google          Google
	Signing         Signing
	Retention       Retention
	RefreshLimit    RateLimit
}

// FromEnv reads the service configuration. It does not validate.
func FromEnv() Config {
	scopes := utilities.EnvList("GOOGLE_SCOPES")
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return Config{
		Addr:            utilities.EnvOrDefault("HTTP_ADDR", "0.0.0.0:8431"),
		Issuer:          utilities.EnvOrDefault("OAUTH_ISSUER", ""),
		FrontendBaseURL: utilities.EnvOrDefault("FRONTEND_BASE_URL", ""),
		Environment:     utilities.EnvOrDefault("APP_ENV", "development"),
		SentryDSN:       utilities.EnvOrDefault("SENTRY_DSN", ""),
		RunMigrations:   utilities.EnvBool("RUN_MIGRATIONS", true),
		UpstreamTimeout: utilities.EnvDurationMillis("UPSTREAM_TIMEOUT_MS", 2*time.Second),
		CORSOrigins:     utilities.EnvList("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:  utilities.EnvList("TRUSTED_PROXIES"),
		CronSecret:      utilities.EnvOrDefault("CRON_SECRET", ""),
		Google: Google{
			IssuerURL:    utilities.EnvOrDefault("GOOGLE_ISSUER_URL", "https://accounts.google.com"),
			ClientID:     utilities.EnvOrDefault("GOOGLE_CLIENT_ID", ""),
			ClientSecret: utilities.EnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  utilities.EnvOrDefault("GOOGLE_REDIRECT_URL", ""),
			Scopes:       scopes,
		},
		Signing: Signing{
			KeyFile:          utilities.EnvOrDefault("SIGNING_KEY_FILE", ""),
			KeystoreFile:     utilities.EnvOrDefault("SIGNING_KEYSTORE_FILE", ""),
			KeystorePassword: utilities.EnvOrDefault("SIGNING_KEYSTORE_PASSWORD", ""),
			KeyID:            utilities.EnvOrDefault("SIGNING_KEY_ID", ""),
		},
		Retention: Retention{
			Days:          utilities.EnvIntOrDefault("CREDENTIAL_RETENTION_DAYS", 30),
			PurgeInterval: time.Duration(utilities.EnvIntOrDefault("CREDENTIAL_PURGE_INTERVAL_MINUTES", 0)) * time.Minute,
			BatchSize:     utilities.EnvIntOrDefault("CREDENTIAL_PURGE_BATCH_SIZE", 500),
		},
		RefreshLimit: RateLimit{
			RPS:   utilities.EnvFloatOrDefault("REFRESH_RATE_LIMIT_RPS", 1),
			Burst: utilities.EnvIntOrDefault("REFRESH_RATE_LIMIT_BURST", 5),
		},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	c := FromEnv()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) KeyConfig() signing.KeyConfig {
	return signing.KeyConfig{
		KeyFile:          c.Signing.KeyFile,
		KeystoreFile:     c.Signing.KeystoreFile,
		KeystorePassword: c.Signing.KeystorePassword,
		KeyID:            c.Signing.KeyID,
	}
}

func (c Config) ProviderConfig() login.ProviderConfig {
	return login.ProviderConfig{
		IssuerURL:    c.Google.IssuerURL,
		ClientID:     c.Google.ClientID,
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  c.Google.RedirectURL,
		Scopes:       c.Google.Scopes,
		Timeout:      c.UpstreamTimeout,
	}
}

// UpstreamConfig takes the token endpoint found by provider discovery.
func (c Config) UpstreamConfig(tokenURL string) renewal.UpstreamConfig {
	return renewal.UpstreamConfig{
		TokenURL:     tokenURL,
		ClientID:     c.Google.ClientID,
		ClientSecret: c.Google.ClientSecret,
		Timeout:      c.UpstreamTimeout,
	}
}

// SecureCookies is true when the front end is served over TLS.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.FrontendBaseURL, "https://")
}
