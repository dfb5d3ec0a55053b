package oauth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	"github.com/dropDatabas3/tokencore/internal/http/middlewares"
	core "github.com/dropDatabas3/tokencore/internal/oauth"
)

// MeController es el recurso protegido de ejemplo; requiere RequireBearer.
type MeController struct{}

type meResponse struct {
	Realm         string   `json:"realm"`
	Subject       string   `json:"sub"`
	PrincipalType string   `json:"principal_type,omitempty"`
	PrincipalID   string   `json:"principal_id,omitempty"`
	ClientID      string   `json:"client_id"`
	Scopes        []string `json:"scopes"`
	JTI           string   `json:"jti"`
	ExpiresAt     int64    `json:"exp,omitempty"`
}

func (c *MeController) Get(w http.ResponseWriter, r *http.Request) {
	ac := middlewares.GetAccess(r.Context())
	if ac == nil {
		httperrors.WriteError(w, core.InvalidToken("Missing \"Authorization\" header"))
		return
	}
	resp := meResponse{
		Realm:         string(ac.Realm),
		Subject:       ac.Principal.Subject(),
		PrincipalType: ac.Principal.Kind().String(),
		PrincipalID:   ac.Principal.ID(),
		ClientID:      ac.ClientID,
		Scopes:        ac.Scopes,
		JTI:           ac.JTI,
	}
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}
	if ac.Claims != nil && ac.Claims.ExpiresAt != nil {
		resp.ExpiresAt = ac.Claims.ExpiresAt.Unix()
	}
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, resp)
}
