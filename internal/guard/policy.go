package guard

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

// Access is the outcome of a policy rule.
type Access int

const (
	// RequireToken is the only default a policy may have.
	RequireToken Access = iota
	Permit
)

func (a Access) String() string {
	if a == Permit {
		return "permit"
	}
	return "authenticated"
}

// ParseAccess maps the textual access names used in policy files.
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permit", "public", "permitall":
		return Permit, nil
	case "authenticated", "token", "require_token":
		return RequireToken, nil
	default:
		return RequireToken, fmt.Errorf("unknown access %q", s)
	}
}

// Rule matches a request by method and path pattern. An empty Method matches
// any method. Patterns are an exact path, a prefix ending in "/**" (which also
// matches the bare prefix) or a path.Match glob.
type Rule struct {
	Method  string
	Pattern string
	Access  Access
}

func (r Rule) matches(method, p string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	switch {
	case r.Pattern == "/**":
		return true
	case strings.HasSuffix(r.Pattern, "/**"):
		base := strings.TrimSuffix(r.Pattern, "/**")
		return p == base || strings.HasPrefix(p, base+"/")
	case strings.ContainsAny(r.Pattern, "*?["):
		ok, err := path.Match(r.Pattern, p)
		return err == nil && ok
	default:
		return p == r.Pattern
	}
}

// Policy is an ordered rule table. The first matching rule decides; a request
// no rule matches requires a token.
type Policy struct {
	rules []Rule
}

// NewPolicy validates patterns and keeps rules in the given order.
func NewPolicy(rules ...Rule) (*Policy, error) {
	for i, r := range rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("rule %d: pattern %q must start with /", i, r.Pattern)
		}
		if _, err := path.Match(r.Pattern, "/"); err != nil {
			return nil, fmt.Errorf("rule %d: pattern %q: %w", i, r.Pattern, err)
		}
	}
	return &Policy{rules: append([]Rule(nil), rules...)}, nil
}

// MustPolicy is NewPolicy for static tables.
func MustPolicy(rules ...Rule) *Policy {
	p, err := NewPolicy(rules...)
	if err != nil {
		panic(err)
	}
	return p
}

// Evaluate returns the access for method and request path. The path is cleaned
// first so dot segments cannot walk out of a public prefix.
func (p *Policy) Evaluate(method, requestPath string) Access {
	cleaned := cleanPath(requestPath)
	for _, r := range p.rules {
		if r.matches(method, cleaned) {
			return r.Access
		}
	}
	return RequireToken
}

// Rules returns a copy of the table.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// Public builds a permit rule for any method.
func Public(pattern string) Rule { return Rule{Pattern: pattern, Access: Permit} }

// PublicMethod builds a permit rule for one method.
func PublicMethod(method, pattern string) Rule {
	return Rule{Method: method, Pattern: pattern, Access: Permit}
}

// Preflight permits CORS preflight requests everywhere.
var Preflight = PublicMethod(http.MethodOptions, "/**")
