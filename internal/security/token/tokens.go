package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// IdentifierBytes es la entropía de los identificadores de tokens y codes (80 hex chars).
const IdentifierBytes = 40

// Generator produce identificadores únicos. Los grants lo reciben inyectado
// para que los tests puedan forzar colisiones.
type Generator func() (string, error)

// NewIdentifier genera un identificador hex de IdentifierBytes bytes aleatorios.
func NewIdentifier() (string, error) {
	b := make([]byte, IdentifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("tokens: random identifier: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
