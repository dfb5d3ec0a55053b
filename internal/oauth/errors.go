// Package oauth implementa el núcleo del authorization server: grants, authorize,
// validación de recursos y revocación, parametrizado por realm.
package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// Códigos OAuth2 (RFC 6749 §5.2 más invalid_credentials).
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidScope         = "invalid_scope"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeUnsupportedResponse  = "unsupported_response_type"
	CodeAccessDenied         = "access_denied"
	CodeServerError          = "server_error"
	CodeInvalidToken         = "invalid_token"
)

// Error es un error OAuth con su envelope HTTP. Err (si existe) sólo se loguea.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Err        error

	// redirectURI/state se fijan sólo cuando el redirect_uri ya fue validado.
	redirectURI string
	state       string
}

func (e *Error) Error() string {
	s := e.Code + ": " + e.Message
	if e.Hint != "" {
		s += " (" + e.Hint + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// WithHint retorna una copia con hint.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

// WithCause retorna una copia con la causa interna.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithRedirect marca el error como entregable por redirect al client.
func (e *Error) WithRedirect(redirectURI, state string) *Error {
	cp := *e
	cp.redirectURI = redirectURI
	cp.state = state
	return &cp
}

// RedirectURL devuelve la URL de error (query error, error_description, hint, message, state)
// cuando el error puede entregarse por redirect.
func (e *Error) RedirectURL() (string, bool) {
	if e.redirectURI == "" {
		return "", false
	}
	params := map[string]string{
		"error":             e.Code,
		"error_description": e.Message,
		"message":           e.Message,
		"hint":              e.Hint,
		"state":             e.state,
	}
	u, err := appendQuery(e.redirectURI, params)
	if err != nil {
		return "", false
	}
	return u, true
}

// Is compara por código, así errors.Is(err, ErrInvalidClient()) funciona con copias.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

const invalidRequestMessage = "The request is missing a required parameter, includes an invalid parameter value, includes a parameter more than once, or is otherwise malformed."

// InvalidRequest: hint por defecto "Check the `param` parameter".
func InvalidRequest(param string, hint ...string) *Error {
	h := fmt.Sprintf("Check the `%s` parameter", param)
	if len(hint) > 0 && hint[0] != "" {
		h = hint[0]
	}
	return &Error{Code: CodeInvalidRequest, Message: invalidRequestMessage, Hint: h, HTTPStatus: http.StatusBadRequest}
}

// InvalidClient es uniforme para todos los motivos de rechazo de client.
func InvalidClient() *Error {
	return &Error{Code: CodeInvalidClient, Message: "Client authentication failed", HTTPStatus: http.StatusUnauthorized}
}

func InvalidGrant(hint string) *Error {
	return &Error{
		Code:       CodeInvalidGrant,
		Message:    "The provided authorization grant (e.g., authorization code, resource owner credentials) or refresh token is invalid, expired, revoked, does not match the redirection URI used in the authorization request, or was issued to another client.",
		Hint:       hint,
		HTTPStatus: http.StatusBadRequest,
	}
}

func InvalidScope(scope string) *Error {
	return &Error{
		Code:       CodeInvalidScope,
		Message:    "The requested scope is invalid, unknown, or malformed",
		Hint:       fmt.Sprintf("Check the `%s` scope", scope),
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidCredentials usa el mensaje uniforme; AccountLocked el mensaje de cuenta deshabilitada.
func InvalidCredentials() *Error {
	return &Error{Code: CodeInvalidCredentials, Message: "The user credentials were incorrect.", HTTPStatus: http.StatusBadRequest}
}

func AccountLocked() *Error {
	return &Error{Code: CodeInvalidCredentials, Message: "Account is locked.", HTTPStatus: http.StatusBadRequest}
}

// principalDisabled: un visitante sin sesión viva no está bloqueado, sólo expiró.
func principalDisabled(p types.PrincipalRef) *Error {
	if p.IsVisitor() {
		return InvalidCredentials()
	}
	return AccountLocked()
}

func UnsupportedGrantType() *Error {
	return &Error{
		Code:       CodeUnsupportedGrantType,
		Message:    "The authorization grant type is not supported by the authorization server.",
		Hint:       "Check that all required parameters have been provided",
		HTTPStatus: http.StatusBadRequest,
	}
}

func UnsupportedResponseType() *Error {
	return &Error{
		Code:       CodeUnsupportedResponse,
		Message:    "The authorization server does not support obtaining an authorization code using this method.",
		HTTPStatus: http.StatusBadRequest,
	}
}

func AccessDenied() *Error {
	return &Error{
		Code:       CodeAccessDenied,
		Message:    "The resource owner or authorization server denied the request.",
		Hint:       "The user denied the request",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InvalidToken se usa en la validación de recursos (401).
func InvalidToken(hint string) *Error {
	return &Error{Code: CodeInvalidToken, Message: "The resource owner or authorization server denied the request.", Hint: hint, HTTPStatus: http.StatusUnauthorized}
}

// ServerError nunca expone la causa al caller.
func ServerError(cause error) *Error {
	return &Error{
		Code:       CodeServerError,
		Message:    "The authorization server encountered an unexpected condition which prevented it from fulfilling the request.",
		HTTPStatus: http.StatusInternalServerError,
		Err:        cause,
	}
}

// AsError mapea cualquier error a *Error; lo desconocido es server_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return ServerError(err)
}

// appendQuery agrega parámetros no vacíos conservando la query existente del redirect_uri.
func appendQuery(raw string, params map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
