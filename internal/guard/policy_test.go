package guard

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyFirstMatchWins(t *testing.T) {
	t.Parallel()

	p := MustPolicy(
		Preflight,
		Rule{Pattern: "/api/admin/**", Access: RequireToken},
		Public("/api/**"),
		Public("/"),
		Public("/*.html"),
		PublicMethod(http.MethodGet, "/status"),
	)

	tests := []struct {
		method string
		path   string
		want   Access
	}{
		{http.MethodOptions, "/api/admin/users", Permit},
		{http.MethodGet, "/api/admin/users", RequireToken},
		{http.MethodGet, "/api/admin", RequireToken},
		{http.MethodGet, "/api/things", Permit},
		{http.MethodGet, "/api", Permit},
		{http.MethodGet, "/apix", RequireToken},
		{http.MethodGet, "/", Permit},
		{http.MethodGet, "/index.html", Permit},
		{http.MethodGet, "/js/index.html", RequireToken},
		{http.MethodGet, "/status", Permit},
		{http.MethodPost, "/status", RequireToken},
		{http.MethodGet, "/unlisted", RequireToken},
		{http.MethodGet, "/api/../secret", RequireToken},
		{http.MethodGet, "/api/admin/../x", Permit},
		{http.MethodGet, "", Permit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Evaluate(tt.method, tt.path), "%s %s", tt.method, tt.path)
	}
}

func TestEmptyPolicyRequiresToken(t *testing.T) {
	t.Parallel()

	p := MustPolicy()
	assert.Equal(t, RequireToken, p.Evaluate(http.MethodGet, "/anything"))
	assert.Equal(t, RequireToken, p.Evaluate(http.MethodOptions, "/"))
}

func TestNewPolicyRejectsBadPatterns(t *testing.T) {
	t.Parallel()

	_, err := NewPolicy(Public("relative"))
	assert.Error(t, err)
	_, err = NewPolicy(Public("/[bad"))
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(`
default: authenticated
rules:
  - method: options
    pattern: /**
    access: permit
  - pattern: /login/**
    access: permit
  - pattern: /api/**
    access: authenticated
`))
	require.NoError(t, err)
	rules := p.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, http.MethodOptions, rules[0].Method)
	assert.Equal(t, Permit, p.Evaluate(http.MethodGet, "/login/oauth2/code/google"))
	assert.Equal(t, RequireToken, p.Evaluate(http.MethodGet, "/api/portfolio"))
}

func TestParsePolicyRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"permissive default": "default: permit\nrules: []\n",
		"unknown access":     "rules:\n  - pattern: /x\n    access: maybe\n",
		"unknown field":      "rules:\n  - pattern: /x\n    access: permit\n    roles: [a]\n",
		"relative pattern":   "rules:\n  - pattern: x\n    access: permit\n",
	}
	for name, doc := range tests {
		_, err := ParsePolicy([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadPolicyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - pattern: /health\n    access: permit\n"), 0o600))

	p, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, Permit, p.Evaluate(http.MethodGet, "/health"))

	_, err = LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
