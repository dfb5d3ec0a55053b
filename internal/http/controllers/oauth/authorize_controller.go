package oauth

import (
	"errors"
	"net/http"
	"strconv"

	httperrors "github.com/dropDatabas3/tokencore/internal/http/errors"
	core "github.com/dropDatabas3/tokencore/internal/oauth"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// AuthorizeController maneja GET|POST /{realm}/authorize.
//
// Sin parámetro approve responde 200 con el pedido de consentimiento; approve=true|false
// decide y redirige al client (302).
type AuthorizeController struct {
	srv      *core.Server
	sessions SessionResolver
}

func NewAuthorizeController(srv *core.Server, sessions SessionResolver) *AuthorizeController {
	return &AuthorizeController{srv: srv, sessions: sessions}
}

type consentPrompt struct {
	ClientID            string   `json:"client_id"`
	ClientName          string   `json:"client_name,omitempty"`
	RedirectURI         string   `json:"redirect_uri"`
	Scopes              []string `json:"scopes"`
	State               string   `json:"state,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Principal           string   `json:"principal"`
	Phase               string   `json:"phase"`
}

func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	}
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, core.InvalidRequest("body"))
		return
	}

	ar, err := c.srv.ValidateAuthorizationRequest(ctx, core.ParseAuthorizeParams(r.Form))
	if err != nil {
		httperrors.WriteRedirectOrError(w, r, err)
		return
	}

	principal, err := c.sessions.ResolveSession(r)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			var oe *core.Error
			if !errors.As(err, &oe) {
				logger.From(ctx).Error("session resolver failed", logger.Err(err))
				httperrors.WriteError(w, core.ServerError(err))
				return
			}
		}
		httperrors.WriteError(w, core.AccessDenied().WithHint("A logged-in principal is required to authorize the client"))
		return
	}

	raw := r.Form.Get("approve")
	if raw == "" {
		scopes := ar.Scopes
		if scopes == nil {
			scopes = []string{}
		}
		w.Header().Set("Cache-Control", "no-store")
		httperrors.WriteJSON(w, http.StatusOK, consentPrompt{
			ClientID:            ar.Client.ID,
			ClientName:          ar.Client.Name,
			RedirectURI:         ar.RedirectURI,
			Scopes:              scopes,
			State:               ar.State,
			CodeChallengeMethod: ar.CodeChallengeMethod,
			Principal:           principal.Subject(),
			Phase:               ar.Phase().String(),
		})
		return
	}
	approve, err := strconv.ParseBool(raw)
	if err != nil {
		httperrors.WriteError(w, core.InvalidRequest("approve", "`approve` must be true or false"))
		return
	}
	if approve {
		ar.Approve(principal)
	} else {
		ar.Deny(principal)
	}

	target, err := c.srv.CompleteAuthorizationRequest(ctx, ar)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
