package oauth

import (
	"net/http"

	core "github.com/dropDatabas3/tokencore/internal/oauth"
)

// JWKSController sirve la clave pública de firma.
type JWKSController struct {
	body []byte
}

// NewJWKSController serializa el JWKS una vez; las claves no cambian en runtime.
func NewJWKSController(srv *core.Server) *JWKSController {
	return &JWKSController{body: srv.JWKS()}
}

func (c *JWKSController) Get(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(c.body)
}
