package guard

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
)

var errUnknownKey = errors.New("unknown key id")

// KeySource resolves the verification key for a token key id.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// StaticKeys holds a fixed set of trusted public keys by key id.
type StaticKeys map[string]*rsa.PublicKey

func NewStaticKey(kid string, pub *rsa.PublicKey) StaticKeys {
	return StaticKeys{kid: pub}
}

// LoadStaticKey reads a PEM public key. The key id defaults to its thumbprint,
// which matches what the signing authority derives for the same key.
func LoadStaticKey(path, kid string) (StaticKeys, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := signing.ParsePublicKeyPEM(data)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		if kid, err = signing.DeriveKeyID(pub); err != nil {
			return nil, err
		}
	}
	return NewStaticKey(kid, pub), nil
}

func (s StaticKeys) PublicKey(_ context.Context, kid string) (*rsa.PublicKey, error) {
	pub, ok := s[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownKey, kid)
	}
	return pub, nil
}

// RemoteKeys fetches and caches the authority JWKS. A failed registration is
// retried on the next lookup.
type RemoteKeys struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	cache  *jwk.Cache
	cancel context.CancelFunc
}

func NewRemoteKeys(url string, timeout time.Duration) *RemoteKeys {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteKeys{url: url, client: &http.Client{Timeout: timeout}}
}

// Start registers the JWKS URL. The cache refresh loop runs until Close.
func (k *RemoteKeys) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cache != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	cache, err := jwk.NewCache(loopCtx, httprc.NewClient(httprc.WithHTTPClient(k.client)))
	if err != nil {
		cancel()
		return fmt.Errorf("create jwks cache: %w", err)
	}
	if err := cache.Register(ctx, k.url); err != nil {
		cancel()
		return fmt.Errorf("register jwks url: %w", err)
	}
	k.cache = cache
	k.cancel = cancel
	return nil
}

// Close stops the background refresh.
func (k *RemoteKeys) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
	}
	k.cache = nil
	k.cancel = nil
}

func (k *RemoteKeys) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if err := k.Start(ctx); err != nil {
		return nil, err
	}
	k.mu.Lock()
	cache := k.cache
	k.mu.Unlock()
	if cache == nil {
		return nil, errors.New("jwks cache closed")
	}
	set, err := cache.Lookup(ctx, k.url)
	if err != nil {
		return nil, fmt.Errorf("lookup jwks: %w", err)
	}
	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("%w: %q", errUnknownKey, kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export jwk: %w", err)
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected jwk type %T", raw)
	}
	return pub, nil
}
