// Package secretbox cifra los payloads opacos (authorization codes y refresh tokens)
// con AES-256-GCM. El formato de salida es base64url(nonce || ciphertext), seguro para
// query strings y form bodies.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// EnvVar es la variable de entorno de donde se carga la clave si no viene por config.
	EnvVar = "TOKENCORE_ENCRYPTION_KEY"

	nonceSizeGCM      = 12 // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32 // AES-256
)

var (
	// ErrDecrypt indica payload corrupto, truncado o cifrado con otra clave.
	ErrDecrypt = errors.New("secretbox: cannot decrypt payload")
	// ErrNotLoaded indica que la clave de proceso no fue cargada.
	ErrNotLoaded = errors.New("secretbox: key not loaded")
	// ErrAlreadyLoaded indica un intento de reemplazar la clave de proceso.
	ErrAlreadyLoaded = errors.New("secretbox: key already loaded")
)

// Key es material de clave AES-256. Es un valor: se copia, no se comparte.
type Key [requiredKeyLength]byte

// ParseKey acepta base64 (std o raw), hex (64 chars) o 32 bytes crudos.
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.TrimSpace(s)
	if s == "" {
		return k, fmt.Errorf("secretbox: empty key; genere una con: openssl rand -base64 32")
	}

	var raw []byte
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		raw = b
	} else if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		raw = b
	} else if len(s) == 2*requiredKeyLength {
		if h, err := hex.DecodeString(s); err == nil {
			raw = h
		}
	}
	if raw == nil {
		raw = []byte(s)
	}
	if len(raw) != requiredKeyLength {
		return k, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(raw), requiredKeyLength)
	}
	copy(k[:], raw)
	return k, nil
}

// GenerateKey crea una clave aleatoria.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return k, fmt.Errorf("secretbox: random key: %w", err)
	}
	return k, nil
}

// String devuelve la clave en base64 std (formato de config/env).
func (k Key) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Box cifra y descifra con una clave fija. Seguro para uso concurrente.
type Box struct {
	aead cipher.AEAD
}

// New construye un Box para la clave dada.
func New(k Key) (*Box, error) {
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal cifra plain y devuelve base64url(nonce||ciphertext) sin padding.
func (b *Box) Seal(plain []byte) (string, error) {
	nonce := make([]byte, nonceSizeGCM, nonceSizeGCM+len(plain)+b.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open descifra un valor producido por Seal. Cualquier falla devuelve ErrDecrypt.
func (b *Box) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil || len(raw) < nonceSizeGCM+b.aead.Overhead() {
		return nil, ErrDecrypt
	}
	pt, err := b.aead.Open(nil, raw[:nonceSizeGCM], raw[nonceSizeGCM:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// --- Clave de proceso ---
//
// La clave se carga una vez al arrancar y es de sólo lectura después.

var (
	processBox atomic.Pointer[Box]
	loadMu     sync.Mutex
)

// Load fija la clave de proceso. Una segunda llamada devuelve ErrAlreadyLoaded.
func Load(k Key) error {
	loadMu.Lock()
	defer loadMu.Unlock()
	if processBox.Load() != nil {
		return ErrAlreadyLoaded
	}
	b, err := New(k)
	if err != nil {
		return err
	}
	processBox.Store(b)
	return nil
}

// LoadFromEnv carga la clave desde TOKENCORE_ENCRYPTION_KEY.
func LoadFromEnv() error {
	k, err := ParseKey(os.Getenv(EnvVar))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvVar, err)
	}
	return Load(k)
}

// Default devuelve el Box de proceso.
func Default() (*Box, error) {
	if b := processBox.Load(); b != nil {
		return b, nil
	}
	return nil, ErrNotLoaded
}

// IsReady indica si la clave de proceso está cargada (healthchecks).
func IsReady() bool {
	return processBox.Load() != nil
}

// UnsafeResetForTests borra la clave de proceso. Usar sólo en tests.
func UnsafeResetForTests() {
	loadMu.Lock()
	processBox.Store(nil)
	loadMu.Unlock()
}
