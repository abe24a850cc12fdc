// Package edge is the externally facing router: it verifies tokens with the
// shared guard, proxies API prefixes to backend services and serves the SPA.
package edge

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Route forwards every request under Prefix to Target. With StripPrefix the
// prefix is removed before forwarding.
type Route struct {
	Prefix      string `yaml:"prefix" validate:"required,startswith=/"`
	Target      string `yaml:"target" validate:"required,url"`
	StripPrefix bool   `yaml:"strip_prefix"`
}

type Config struct {
	Addr          string            `yaml:"addr" validate:"required,hostname_port"`
	StaticDir     string            `yaml:"static_dir"`
	AuthorityURL  string            `yaml:"authority_url" validate:"required,url"`
	Issuer        string            `yaml:"issuer" validate:"omitempty,url"`
	JWKSURL       string            `yaml:"jwks_url" validate:"omitempty,url"`
	PublicKeyFile string            `yaml:"public_key_file" validate:"required_without=JWKSURL"`
	KeyID         string            `yaml:"key_id"`
	JWKSTimeout   time.Duration     `yaml:"jwks_timeout"`
	PolicyFile    string            `yaml:"policy_file"`
	Policy        *guard.PolicySpec `yaml:"policy"`
	Routes        []Route           `yaml:"routes" validate:"dive"`
	CORSOrigins   []string          `yaml:"cors_origins"`
}

// DefaultRoutes sends the login handshake and the authority's own API to the
// authority service.
func DefaultRoutes(authorityURL string) []Route {
	return []Route{
		{Prefix: "/oauth-service", Target: authorityURL, StripPrefix: true},
		{Prefix: "/oauth2", Target: authorityURL},
		{Prefix: "/login", Target: authorityURL},
	}
}

// ConfigFromEnv builds the edge configuration. EDGE_CONFIG_FILE, when set, is
// read first and the environment overrides its scalar settings.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if path := utilities.EnvOrDefault("EDGE_CONFIG_FILE", ""); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	cfg.Addr = utilities.EnvOrDefault("EDGE_ADDR", orDefault(cfg.Addr, "0.0.0.0:8080"))
	cfg.AuthorityURL = strings.TrimRight(utilities.EnvOrDefault("EDGE_AUTHORITY_URL", orDefault(cfg.AuthorityURL, "http://localhost:8431")), "/")
	cfg.StaticDir = utilities.EnvOrDefault("EDGE_STATIC_DIR", orDefault(cfg.StaticDir, "./static"))
	cfg.Issuer = utilities.EnvOrDefault("EDGE_ISSUER", cfg.Issuer)
	cfg.PublicKeyFile = utilities.EnvOrDefault("EDGE_PUBLIC_KEY_FILE", cfg.PublicKeyFile)
	cfg.KeyID = utilities.EnvOrDefault("EDGE_KEY_ID", cfg.KeyID)
	cfg.PolicyFile = utilities.EnvOrDefault("EDGE_POLICY_FILE", cfg.PolicyFile)
	cfg.JWKSURL = utilities.EnvOrDefault("EDGE_JWKS_URL", cfg.JWKSURL)
	if cfg.JWKSURL == "" && cfg.PublicKeyFile == "" {
		cfg.JWKSURL = cfg.AuthorityURL + "/oauth2/jwks"
	}
	cfg.JWKSTimeout = utilities.EnvDurationMillis("EDGE_JWKS_TIMEOUT_MS", orDuration(cfg.JWKSTimeout, 2*time.Second))
	if origins := utilities.EnvList("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes(cfg.AuthorityURL)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a YAML edge configuration. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return Config{}, fmt.Errorf("read edge config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode edge config: %w", err)
	}
	return cfg, nil
}

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
	return fmt.Errorf("invalid edge configuration: %s", strings.Join(msgs, "; "))
}

// BuildPolicy picks the inline policy, then the policy file, then DefaultPolicy.
func (c Config) BuildPolicy() (*guard.Policy, error) {
	switch {
	case c.Policy != nil:
		return c.Policy.Build()
	case c.PolicyFile != "":
		return guard.LoadPolicyFile(c.PolicyFile)
	default:
		return DefaultPolicy(), nil
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
