package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/pkcs12"
)

// MinKeyBits is the smallest RSA modulus accepted for signing.
const MinKeyBits = 2048

var ErrNoKeyConfigured = errors.New("no signing key configured")

// KeyConfig selects where the signing key comes from. KeyFile wins over the
// keystore when both are set.
type KeyConfig struct {
	KeyFile          string
	KeystoreFile     string
	KeystorePassword string
	// KeyID overrides the derived RFC 7638 thumbprint.
	KeyID string
}

// KeyPair is the process-wide signing key. It is built once and never mutated.
type KeyPair struct {
	private *rsa.PrivateKey
	kid     string
}

// NewKeyPair validates key and derives the key id when kid is empty.
func NewKeyPair(key *rsa.PrivateKey, kid string) (*KeyPair, error) {
	if key == nil {
		return nil, ErrNoKeyConfigured
	}
	if bits := key.N.BitLen(); bits < MinKeyBits {
		return nil, fmt.Errorf("RSA key size %d bits is below minimum required %d bits", bits, MinKeyBits)
	}
	if kid == "" {
		derived, err := DeriveKeyID(&key.PublicKey)
		if err != nil {
			return nil, err
		}
		kid = derived
	}
	return &KeyPair{private: key, kid: kid}, nil
}

// GenerateKeyPair creates a fresh RSA key pair.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewKeyPair(key, "")
}

// LoadKeyPair reads the signing key described by cfg.
func LoadKeyPair(cfg KeyConfig) (*KeyPair, error) {
	var (
		key *rsa.PrivateKey
		err error
	)
	switch {
	case cfg.KeyFile != "":
		key, err = loadPEMKey(cfg.KeyFile)
	case cfg.KeystoreFile != "":
		key, err = loadKeystore(cfg.KeystoreFile, cfg.KeystorePassword)
	default:
		return nil, ErrNoKeyConfigured
	}
	if err != nil {
		return nil, err
	}
	return NewKeyPair(key, cfg.KeyID)
}

func (k *KeyPair) KeyID() string { return k.kid }

func (k *KeyPair) Public() *rsa.PublicKey { return &k.private.PublicKey }

func loadPEMKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM accepts PKCS#1 and PKCS#8 encoded RSA keys.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from signing key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type: %T", parsed)
	}
	return key, nil
}

func loadKeystore(path, password string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	parsed, _, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode keystore: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported keystore key type: %T", parsed)
	}
	return key, nil
}

// DeriveKeyID computes base64url(SHA-256(JWK canonical form)) per RFC 7638.
func DeriveKeyID(pub crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// ParsePublicKeyPEM accepts a PKIX or PKCS#1 RSA public key, or a certificate.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from public key")
	}
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported certificate key type: %T", cert.PublicKey)
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type: %T", parsed)
	}
	return pub, nil
}

// EncodePrivateKeyPEM returns the key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(k *KeyPair) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.private)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM returns the public half as a PKIX PEM block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
