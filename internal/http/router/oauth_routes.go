package router

import (
	"github.com/go-chi/chi/v5"

	oauthctrl "github.com/dropDatabas3/tokencore/internal/http/controllers/oauth"
	mw "github.com/dropDatabas3/tokencore/internal/http/middlewares"
	"github.com/dropDatabas3/tokencore/internal/oauth"
)

// registerOAuthRoutes registra las rutas de un realm bajo /{realm}.
func registerOAuthRoutes(r chi.Router, c *oauthctrl.Controllers, srv *oauth.Server, deps Deps) {
	// POST /{realm}/token (RFC 6749 §3.2)
	r.With(mw.WithNoStore(), mw.WithRateLimit(deps.TokenLimiter, mw.ClientRateKey)).
		Post("/token", c.Token.Token)

	// POST /{realm}/revoke (RFC 7009)
	r.With(mw.WithNoStore(), mw.WithRateLimit(deps.TokenLimiter, mw.ClientRateKey)).
		Post("/revoke", c.Revoke.Revoke)

	// GET|POST /{realm}/authorize
	r.Group(func(g chi.Router) {
		g.Use(mw.WithNoStore(), mw.WithRateLimit(deps.AuthorizeLimiter, mw.IPRateKey))
		g.Get("/authorize", c.Authorize.Authorize)
		g.Post("/authorize", c.Authorize.Authorize)
	})

	// GET /{realm}/.well-known/jwks.json
	r.Get("/.well-known/jwks.json", c.JWKS.Get)

	// GET /{realm}/api/me (bearer)
	r.With(mw.RequireBearer(srv)).Get("/api/me", c.Me.Get)
}
