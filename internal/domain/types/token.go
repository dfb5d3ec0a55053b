package types

import "time"

// Scope es un identificador de scope; finalizar scopes es la identidad.
type Scope string

// AuthCode es un authorization code persistido. Su valor público es un payload cifrado.
type AuthCode struct {
	ID                  string
	ClientID            string
	Principal           PrincipalRef
	Scopes              []string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Revoked             bool
}

// AccessToken es el registro persistido de un JWT de acceso (ID = jti).
type AccessToken struct {
	ID        string
	ClientID  string
	Principal PrincipalRef // cero en client_credentials
	Scopes    []string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// RefreshToken se vincula uno a uno con el AccessToken con el que se emitió.
type RefreshToken struct {
	ID            string
	AccessTokenID string
	ExpiresAt     time.Time
	Revoked       bool
	CreatedAt     time.Time
}

// Expired evalúa la expiración de forma perezosa.
func (t *AccessToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

func (t *RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

func (c *AuthCode) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }
