package jwt

import (
	"errors"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken cubre firma inválida, token malformado o claims incompletas.
	ErrInvalidToken = errors.New("invalid_jwt")
	// ErrExpired indica exp vencido.
	ErrExpired = errors.New("expired")
	// ErrWrongRealm indica un token emitido por otro realm.
	ErrWrongRealm = errors.New("wrong_realm")
)

// AccessClaims son las claims del access token.
type AccessClaims struct {
	jwtv5.RegisteredClaims
	Scopes []string `json:"scopes"`
	Realm  string   `json:"realm"`
	// pty/pid transportan el PrincipalRef etiquetado; sub es sólo informativo.
	PrincipalType string `json:"pty,omitempty"`
	PrincipalID   string `json:"pid,omitempty"`
}

// Principal reconstruye el PrincipalRef desde pty/pid.
func (c *AccessClaims) Principal() (types.PrincipalRef, error) {
	return types.ParsePrincipal(c.PrincipalType, c.PrincipalID)
}

// ClientID es la audiencia del token.
func (c *AccessClaims) ClientID() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// Signer firma access tokens RS256 para un realm.
type Signer struct {
	keys   *KeyPair
	issuer string
	realm  types.Realm
}

func NewSigner(keys *KeyPair, issuer string, realm types.Realm) *Signer {
	return &Signer{keys: keys, issuer: issuer, realm: realm}
}

// JWKS expone la clave pública del firmante.
func (s *Signer) JWKS() []byte { return s.keys.JWKSJSON() }

// SignAccess firma el JWT correspondiente al registro persistido.
func (s *Signer) SignAccess(at *types.AccessToken, issuedAt time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        at.ID,
			Issuer:    s.issuer,
			Subject:   at.Principal.Subject(),
			Audience:  jwtv5.ClaimStrings{at.ClientID},
			IssuedAt:  jwtv5.NewNumericDate(issuedAt),
			NotBefore: jwtv5.NewNumericDate(issuedAt),
			ExpiresAt: jwtv5.NewNumericDate(at.ExpiresAt),
		},
		Scopes:        append([]string{}, at.Scopes...),
		Realm:         string(s.realm),
		PrincipalType: at.Principal.Kind().String(),
		PrincipalID:   at.Principal.ID(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = s.keys.KID()
	tk.Header["typ"] = "JWT"
	return tk.SignedString(s.keys.priv)
}

// Verifier valida firma, issuer, expiración y realm. Sin estado mutable.
type Verifier struct {
	keys   *KeyPair
	issuer string
	realm  types.Realm
	leeway time.Duration
	now    func() time.Time
}

func NewVerifier(keys *KeyPair, issuer string, realm types.Realm) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, realm: realm, leeway: 5 * time.Second, now: time.Now}
}

// ParseAccess devuelve las claims de un access token válido para este realm.
func (v *Verifier) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	keyfunc := func(t *jwtv5.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != v.keys.KID() {
			return nil, ErrInvalidToken
		}
		return v.keys.pub, nil
	}
	tok, err := jwtv5.ParseWithClaims(raw, claims, keyfunc,
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodRS256.Alg()}),
		jwtv5.WithIssuer(v.issuer),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(v.leeway),
		jwtv5.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Realm != string(v.realm) {
		return nil, ErrWrongRealm
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
