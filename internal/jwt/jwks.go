package jwt

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
)

type jwk struct {
	Kty string `json:"kty"` // "RSA"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "RS256"
	Use string `json:"use"` // "sig"
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSJSON devuelve el JWKS (sólo la pública) para resource servers externos.
func (k *KeyPair) JWKSJSON() []byte {
	j := jwks{Keys: []jwk{{
		Kty: "RSA",
		Kid: k.kid,
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(k.pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.pub.E)).Bytes()),
	}}}
	b, _ := json.Marshal(j)
	return b
}
