package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// SecretParams son los parámetros argon2id para client secrets. Más livianos que
// Default: los secrets son aleatorios de alta entropía y se verifican en cada /token.
var SecretParams = Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, KeyLen: 32}

// NewSalt genera un salt hex de 16 bytes para un client secret.
func NewSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DigestSecret deriva el digest almacenado de un client secret con su salt.
func DigestSecret(secret, salt string) string {
	dk := argon2.IDKey([]byte(secret), []byte(salt), SecretParams.Time, SecretParams.Memory, SecretParams.Parallelism, SecretParams.KeyLen)
	return base64.RawStdEncoding.EncodeToString(dk)
}

// VerifySecret compara en tiempo constante el digest de secret contra el almacenado.
func VerifySecret(secret, salt, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	got := DigestSecret(secret, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1
}
