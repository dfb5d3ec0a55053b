package types

// GrantType es el conjunto cerrado de grants OAuth2 soportados.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
)

// GrantTypes lista todos los grants en orden estable.
var GrantTypes = []GrantType{
	GrantAuthorizationCode,
	GrantClientCredentials,
	GrantPassword,
	GrantRefreshToken,
}

// ParseGrantType devuelve false para grants fuera del conjunto soportado.
func ParseGrantType(s string) (GrantType, bool) {
	for _, g := range GrantTypes {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}

func (g GrantType) String() string { return string(g) }
