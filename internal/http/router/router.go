// Package router arma el árbol de rutas: un sub-router por realm más /healthz y /metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/tokencore/internal/http"
	healthctrl "github.com/dropDatabas3/tokencore/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/tokencore/internal/http/controllers/oauth"
	mw "github.com/dropDatabas3/tokencore/internal/http/middlewares"
	"github.com/dropDatabas3/tokencore/internal/oauth"
	"github.com/dropDatabas3/tokencore/internal/rate"
)

// RealmDeps son las dependencias HTTP de un realm.
type RealmDeps struct {
	Server *oauth.Server
	// Sessions resuelve el principal en /authorize; nil = BearerSession.
	Sessions oauthctrl.SessionResolver
}

// Deps contiene todo lo que necesita el handler raíz.
type Deps struct {
	Realms []RealmDeps

	// Opcionales.
	TokenLimiter     rate.Limiter
	AuthorizeLimiter rate.Limiter
	CORSOrigins      []string
	Health           *healthctrl.Controller
	Metrics          http.Handler
}

// New devuelve el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		httpx.WithMetrics,
		mw.WithSecurityHeaders(),
		mw.WithCORS(deps.CORSOrigins),
	)

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	for _, rd := range deps.Realms {
		c := oauthctrl.NewControllers(rd.Server, rd.Sessions)
		r.Route("/"+rd.Server.Realm().String(), func(rr chi.Router) {
			registerOAuthRoutes(rr, c, rd.Server, deps)
		})
	}
	return r
}
