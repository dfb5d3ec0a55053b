package types

import "time"

// Client es un cliente OAuth2 registrado en un realm.
type Client struct {
	ID   string // client_id público
	Name string
	// Realm no cambia después de la creación.
	Realm Realm

	SecretDigest string
	SecretSalt   string
	Confidential bool

	// GrantTypes vacío significa "todos los grants" (legacy).
	GrantTypes   []GrantType
	RedirectURIs []string
	// AllowPlainPKCE habilita code_challenge_method=plain.
	AllowPlainPKCE bool

	Active         bool
	OrganizationID string

	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// HasGrant indica si el grant está listado explícitamente.
func (c *Client) HasGrant(g GrantType) bool {
	for _, x := range c.GrantTypes {
		if x == g {
			return true
		}
	}
	return false
}

// User es un principal registrado de un realm.
type User struct {
	ID           string
	Realm        Realm
	Username     string
	PasswordHash string // argon2id PHC (salt embebido)
	Enabled      bool
	CreatedAt    time.Time
}
