// Package oauth contiene los controllers HTTP de un realm: token, authorize, revoke, jwks y api/me.
package oauth

import (
	core "github.com/dropDatabas3/tokencore/internal/oauth"
)

// Controllers agrupa los controllers de un realm.
type Controllers struct {
	Token     *TokenController
	Authorize *AuthorizeController
	Revoke    *RevokeController
	JWKS      *JWKSController
	Me        *MeController
}

// NewControllers arma los controllers sobre el core del realm. sessions nil = BearerSession.
func NewControllers(srv *core.Server, sessions SessionResolver) *Controllers {
	if sessions == nil {
		sessions = BearerSession{Validator: srv}
	}
	return &Controllers{
		Token:     NewTokenController(srv),
		Authorize: NewAuthorizeController(srv, sessions),
		Revoke:    NewRevokeController(srv),
		JWKS:      NewJWKSController(srv),
		Me:        &MeController{},
	}
}
