package oauth

import (
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	core "github.com/dropDatabas3/tokencore/internal/oauth"
)

// RevokeController maneja POST /{realm}/revoke (RFC 7009).
type RevokeController struct {
	srv *core.Server
}

func NewRevokeController(srv *core.Server) *RevokeController {
	return &RevokeController{srv: srv}
}

// Revoke responde 200 sin body aunque el token no exista o ya esté revocado.
func (c *RevokeController) Revoke(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, core.InvalidRequest("body", "The request body must be application/x-www-form-urlencoded"))
		return
	}
	req := core.RevokeRequest{
		ClientID:      strings.TrimSpace(r.PostForm.Get("client_id")),
		ClientSecret:  r.PostForm.Get("client_secret"),
		Token:         strings.TrimSpace(r.PostForm.Get("token")),
		TokenTypeHint: r.PostForm.Get("token_type_hint"),
	}
	if user, pass, ok := r.BasicAuth(); ok {
		req.ClientID, req.ClientSecret = user, pass
	}
	if err := c.srv.Revoke(r.Context(), req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
