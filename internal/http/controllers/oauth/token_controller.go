package oauth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	core "github.com/dropDatabas3/tokencore/internal/oauth"
)

// TokenController maneja POST /{realm}/token.
type TokenController struct {
	srv *core.Server
}

func NewTokenController(srv *core.Server) *TokenController {
	return &TokenController{srv: srv}
}

func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, core.InvalidRequest("body", "The request body must be application/x-www-form-urlencoded"))
		return
	}
	user, pass, hasBasic := r.BasicAuth()
	req := core.ParseTokenRequest(r.PostForm, user, pass, hasBasic)

	resp, err := c.srv.Token(r.Context(), req)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httperrors.WriteJSON(w, http.StatusOK, resp)
}
