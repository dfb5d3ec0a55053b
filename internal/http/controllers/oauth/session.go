package oauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	core "github.com/dropDatabas3/tokencore/internal/oauth"
)

// maxFormBytes acota los bodies form-urlencoded.
const maxFormBytes = 64 << 10

// ErrNoSession: no hay principal autenticado en el request.
var ErrNoSession = errors.New("no authenticated session")

// SessionResolver indica quién está logueado al llegar a /authorize.
type SessionResolver interface {
	ResolveSession(r *http.Request) (types.PrincipalRef, error)
}

// SessionResolverFunc adapta una función.
type SessionResolverFunc func(r *http.Request) (types.PrincipalRef, error)

func (f SessionResolverFunc) ResolveSession(r *http.Request) (types.PrincipalRef, error) { return f(r) }

type bearerValidator interface {
	ValidateBearer(ctx context.Context, raw string) (*core.AccessContext, error)
}

// BearerSession toma la sesión del access token del mismo realm (first-party login por
// password grant). Tokens de client_credentials no cuentan como sesión.
type BearerSession struct {
	Validator bearerValidator
}

func (b BearerSession) ResolveSession(r *http.Request) (types.PrincipalRef, error) {
	raw, ok := core.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return types.PrincipalRef{}, ErrNoSession
	}
	ac, err := b.Validator.ValidateBearer(r.Context(), raw)
	if err != nil {
		return types.PrincipalRef{}, err
	}
	if ac.Principal.IsZero() {
		return types.PrincipalRef{}, ErrNoSession
	}
	return ac.Principal, nil
}
