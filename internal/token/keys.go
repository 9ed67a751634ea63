package token

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-jose/go-jose/v4"
)

const keyBits = 2048

// KeyPair is the issuer's RSA signing key. It never changes after
// startup. KeyID is the RFC 7638 thumbprint of the public key, so a key
// loaded from disk keeps its kid across restarts.
type KeyPair struct {
	Private *rsa.PrivateKey
	KeyID   string
}

// NewKeyPair wraps priv and derives its kid.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	jwk := jose.JSONWebKey{Key: &priv.PublicKey}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("key thumbprint: %w", err)
	}
	return &KeyPair{Private: priv, KeyID: base64.RawURLEncoding.EncodeToString(sum)}, nil
}

// GenerateKeyPair creates a fresh 2048-bit key.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewKeyPair(priv)
}

// LoadOrGenerateKeyPair loads a PKCS#1 PEM key from path. A missing file
// is generated and written with mode 0600. An empty path yields a new key
// for this process only.
func LoadOrGenerateKeyPair(path string) (*KeyPair, error) {
	if path == "" {
		return GenerateKeyPair()
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return parsePEM(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read signing key file: %w", err)
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := WriteKeyFile(path, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// WriteKeyFile persists the private key as PKCS#1 PEM.
func WriteKeyFile(path string, kp *KeyPair) error {
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(kp.Private)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("save signing key: %w", err)
	}
	return nil
}

func parsePEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, errors.New("invalid PEM block in signing key")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return NewKeyPair(priv)
}

// JWKS returns the public half as a key set. The private key is never
// part of the output.
func (k *KeyPair) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &k.Private.PublicKey,
		KeyID:     k.KeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
}

// Key lets the issuer's own key act as a KeySource.
func (k *KeyPair) Key(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if kid != "" && kid != k.KeyID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return &k.Private.PublicKey, nil
}
