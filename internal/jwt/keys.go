package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrInvalidKey indica PEM ilegible o de un tipo distinto de RSA.
var ErrInvalidKey = errors.New("jwt: invalid key")

// KeyPair es el par RSA de firma de access tokens, compartido por todos los realms.
// Inmutable después de construido; la verificación no toma locks.
type KeyPair struct {
	kid  string
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

// NewKeyPair envuelve una clave privada RSA. El kid se deriva de la pública.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	if priv == nil {
		return nil, ErrInvalidKey
	}
	if priv.N.BitLen() < 2048 {
		return nil, fmt.Errorf("%w: RSA key must be at least 2048 bits", ErrInvalidKey)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(der)
	return &KeyPair{
		kid:  base64.RawURLEncoding.EncodeToString(sum[:12]),
		priv: priv,
		pub:  &priv.PublicKey,
	}, nil
}

// GenerateKeyPair crea un par nuevo (CLI y tests).
func GenerateKeyPair(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return NewKeyPair(priv)
}

func (k *KeyPair) KID() string               { return k.kid }
func (k *KeyPair) PublicKey() *rsa.PublicKey { return k.pub }

// LoadPEM devuelve s si es PEM inline; si no, lo trata como path.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey acepta PKCS#1 ("RSA PRIVATE KEY") o PKCS#8 ("PRIVATE KEY").
func ParsePrivateKey(s string) (*KeyPair, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	var priv *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var key any
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			if priv, ok = key.(*rsa.PrivateKey); !ok {
				return nil, fmt.Errorf("%w: PKCS#8 key is not RSA", ErrInvalidKey)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKeyPair(priv)
}

// PrivatePEM serializa la privada en PKCS#8.
func (k *KeyPair) PrivatePEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicPEM serializa la pública en PKIX.
func (k *KeyPair) PublicPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// --- Par de proceso ---

var (
	processKeys atomic.Pointer[KeyPair]
	loadMu      sync.Mutex
)

// ErrKeysNotLoaded indica que no se cargó el par de proceso.
var ErrKeysNotLoaded = errors.New("jwt: signing keys not loaded")

// Load fija el par de proceso una única vez.
func Load(k *KeyPair) error {
	if k == nil {
		return ErrInvalidKey
	}
	loadMu.Lock()
	defer loadMu.Unlock()
	if processKeys.Load() != nil {
		return errors.New("jwt: signing keys already loaded")
	}
	processKeys.Store(k)
	return nil
}

// Default devuelve el par de proceso.
func Default() (*KeyPair, error) {
	if k := processKeys.Load(); k != nil {
		return k, nil
	}
	return nil, ErrKeysNotLoaded
}

// UnsafeResetForTests borra el par de proceso. Usar sólo en tests.
func UnsafeResetForTests() {
	loadMu.Lock()
	processKeys.Store(nil)
	loadMu.Unlock()
}
