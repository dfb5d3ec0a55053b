package oauth

import (
	"context"
	"errors"
	"net/url"
	"slices"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/security/pkce"
)

// Phase es la etapa de un AuthorizationRequest.
type Phase uint8

const (
	PhaseRequested Phase = iota
	PhaseConsentPending
	PhaseGranted
	PhaseDenied
	PhaseCodeIssued
)

func (p Phase) String() string {
	switch p {
	case PhaseRequested:
		return "REQUESTED"
	case PhaseConsentPending:
		return "CONSENT_PENDING"
	case PhaseGranted:
		return "GRANTED"
	case PhaseDenied:
		return "DENIED"
	case PhaseCodeIssued:
		return "CODE_ISSUED"
	default:
		return "UNKNOWN"
	}
}

// AuthorizeParams son los parámetros de /authorize.
type AuthorizeParams struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ParseAuthorizeParams lee los parámetros desde query o form.
func ParseAuthorizeParams(v url.Values) AuthorizeParams {
	return AuthorizeParams{
		ResponseType:        v.Get("response_type"),
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: v.Get("code_challenge_method"),
	}
}

// AuthorizationRequest es un pedido validado a la espera de consentimiento.
type AuthorizationRequest struct {
	Client *types.Client
	// RequestedRedirectURI es el valor literal recibido (vacío si se omitió); el exchange debe repetirlo.
	RequestedRedirectURI string
	// RedirectURI es el destino efectivo.
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	Principal types.PrincipalRef
	phase     Phase
}

// Phase devuelve la etapa actual.
func (ar *AuthorizationRequest) Phase() Phase { return ar.phase }

// Approve registra el consentimiento del principal.
func (ar *AuthorizationRequest) Approve(p types.PrincipalRef) {
	ar.Principal = p
	ar.phase = PhaseGranted
}

// Deny registra el rechazo.
func (ar *AuthorizationRequest) Deny(p types.PrincipalRef) {
	ar.Principal = p
	ar.phase = PhaseDenied
}

// ValidateAuthorizationRequest valida client, redirect, scopes y PKCE.
// Errores de client/redirect nunca llevan redirect.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, p AuthorizeParams) (*AuthorizationRequest, error) {
	log := logger.From(ctx).With(logger.Realm(string(s.realm.Name)), logger.ClientID(p.ClientID), logger.Op("authorize"))

	if p.ClientID == "" {
		return nil, InvalidRequest("client_id")
	}
	if p.ResponseType == "" {
		return nil, InvalidRequest("response_type")
	}
	if p.ResponseType != "code" {
		return nil, UnsupportedResponseType()
	}

	client, err := s.realm.Clients.Resolve(ctx, p.ClientID)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("authorize rejected", logger.Reason("client_not_found"))
			return nil, InvalidClient()
		}
		return nil, ServerError(err)
	}
	if !s.realm.Clients.IsEnabled(ctx, client) || !s.realm.Clients.IsGrantSupported(client, types.GrantAuthorizationCode) {
		log.Debug("authorize rejected", logger.Reason("client_disabled_or_grant_unsupported"))
		return nil, InvalidClient()
	}

	redirect, err := resolveRedirect(client, p.RedirectURI)
	if err != nil {
		log.Debug("authorize rejected", logger.Reason("redirect_uri_mismatch"))
		return nil, InvalidClient()
	}

	scopes, err := s.validateScopes(ctx, p.Scope)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) && oe.Code == CodeInvalidScope {
			return nil, oe.WithRedirect(redirect, p.State)
		}
		return nil, err
	}

	ar := &AuthorizationRequest{
		Client:               client,
		RequestedRedirectURI: p.RedirectURI,
		RedirectURI:          redirect,
		Scopes:               scopes,
		State:                p.State,
		phase:                PhaseRequested,
	}

	if p.CodeChallenge != "" {
		method, err := pkce.ParseMethod(p.CodeChallengeMethod)
		if err != nil {
			return nil, InvalidRequest("code_challenge_method", "Code challenge method must be one of `plain`, `S256`")
		}
		if !pkce.ValidFormat(p.CodeChallenge) {
			return nil, InvalidRequest("code_challenge", "Code challenge must follow the specifications of RFC-7636.")
		}
		if method == pkce.MethodPlain && !client.AllowPlainPKCE {
			return nil, InvalidRequest("code_challenge_method", "Plain code challenge method is not allowed for this client")
		}
		ar.CodeChallenge = p.CodeChallenge
		ar.CodeChallengeMethod = string(method)
	} else if !client.Confidential {
		return nil, InvalidRequest("code_challenge", "Code challenge must be provided for public clients")
	}

	ar.phase = PhaseConsentPending
	return ar, nil
}

// CompleteAuthorizationRequest devuelve la URL de redirect: ?code=… si hubo consentimiento,
// ?error=access_denied si no.
func (s *Server) CompleteAuthorizationRequest(ctx context.Context, ar *AuthorizationRequest) (string, error) {
	switch ar.phase {
	case PhaseDenied:
		u, _ := AccessDenied().WithRedirect(ar.RedirectURI, ar.State).RedirectURL()
		return u, nil
	case PhaseGranted:
	default:
		return "", ServerError(errors.New("oauth: authorization request has no consent decision"))
	}
	if ar.Principal.IsZero() {
		return "", ServerError(errors.New("oauth: authorization request without principal"))
	}

	now := s.now().UTC()
	var code *types.AuthCode
	err := s.persistWithRetry(ctx, "auth_code", func(id string) error {
		code = &types.AuthCode{
			ID:                  id,
			ClientID:            ar.Client.ID,
			Principal:           ar.Principal,
			Scopes:              ar.Scopes,
			RedirectURI:         ar.RequestedRedirectURI,
			CodeChallenge:       ar.CodeChallenge,
			CodeChallengeMethod: ar.CodeChallengeMethod,
			ExpiresAt:           now.Add(s.realm.TTLs.authCode()),
		}
		return s.realm.Store.AuthCodes().Persist(ctx, code)
	})
	if err != nil {
		return "", err
	}
	payload := newAuthCodePayload(code)
	sealed, err := seal(s.realm.Codec, &payload)
	if err != nil {
		return "", ServerError(err)
	}
	u, err := appendQuery(ar.RedirectURI, map[string]string{"code": sealed, "state": ar.State})
	if err != nil {
		return "", ServerError(err)
	}
	ar.phase = PhaseCodeIssued
	return u, nil
}

// resolveRedirect: el redirect pedido debe coincidir exacto con uno registrado; si se omite,
// sólo vale cuando hay un único URI registrado.
func resolveRedirect(c *types.Client, requested string) (string, error) {
	if requested == "" {
		if len(c.RedirectURIs) == 1 {
			return c.RedirectURIs[0], nil
		}
		return "", errRedirectMismatch
	}
	if slices.Contains(c.RedirectURIs, requested) {
		return requested, nil
	}
	return "", errRedirectMismatch
}

var errRedirectMismatch = errors.New("redirect_uri mismatch")
