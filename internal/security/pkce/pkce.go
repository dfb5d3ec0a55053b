// Package pkce implementa Proof Key for Code Exchange (RFC 7636).
package pkce

import (
	"crypto/subtle"
	"errors"
	"regexp"
	"strings"

	tokens "github.com/dropDatabas3/tokencore/internal/security/token"
)

// Method es el code_challenge_method.
type Method string

const (
	MethodPlain Method = "plain"
	MethodS256  Method = "S256"
)

// ErrUnknownMethod se devuelve para métodos distintos de plain/S256.
var ErrUnknownMethod = errors.New("pkce: unknown code challenge method")

// 43..128 caracteres unreserved (RFC 7636 §4.1 y §4.2).
var valueRE = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// ParseMethod normaliza el método. Vacío equivale a plain (RFC 7636 §4.3).
func ParseMethod(s string) (Method, error) {
	switch strings.TrimSpace(s) {
	case "", string(MethodPlain):
		return MethodPlain, nil
	case string(MethodS256):
		return MethodS256, nil
	default:
		return "", ErrUnknownMethod
	}
}

// ValidFormat chequea el formato de un verifier o de un challenge.
func ValidFormat(v string) bool {
	return valueRE.MatchString(v)
}

// Challenge calcula el challenge para un verifier.
func Challenge(verifier string, m Method) string {
	if m == MethodS256 {
		return tokens.SHA256Base64URL(verifier)
	}
	return verifier
}

// Verify compara en tiempo constante el challenge derivado del verifier con el almacenado.
func Verify(verifier, challenge string, m Method) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	var derived string
	switch m {
	case MethodS256:
		derived = tokens.SHA256Base64URL(verifier)
	case MethodPlain:
		derived = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

// NewVerifier genera un verifier aleatorio de 43 caracteres y su challenge S256.
func NewVerifier() (verifier, challenge string, err error) {
	verifier, err = tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", "", err
	}
	return verifier, Challenge(verifier, MethodS256), nil
}
