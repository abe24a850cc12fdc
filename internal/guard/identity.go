package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Identity is the verified caller attached to a request by the guard. Business
// handlers read it from the context and from nowhere else.
type Identity struct {
	Subject string
	Scope   string
	Email   string
	Name    string
	Claims  map[string]any
	// Token is the raw bearer token. It is never rendered by String or MarshalJSON.
	Token string
}

// Scopes splits the space-delimited scope claim.
func (i *Identity) Scopes() []string {
	if i == nil {
		return nil
	}
	return strings.Fields(i.Scope)
}

// HasScope reports whether scope was granted.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q Scope:%q}", i.Subject, i.Scope)
}

func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Subject string         `json:"sub"`
		Scope   string         `json:"scope,omitempty"`
		Email   string         `json:"email,omitempty"`
		Name    string         `json:"name,omitempty"`
		Claims  map[string]any `json:"claims,omitempty"`
	}{i.Subject, i.Scope, i.Email, i.Name, i.Claims})
}

// IdentityContextKey is the context key for the verified identity.
type IdentityContextKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, IdentityContextKey{}, identity)
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}
