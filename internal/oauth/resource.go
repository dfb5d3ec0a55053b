package oauth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/jwt"
	"github.com/dropDatabas3/tokencore/internal/metrics"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// AccessContext es el resultado de validar un bearer token.
type AccessContext struct {
	Realm     types.Realm
	JTI       string
	ClientID  string
	Principal types.PrincipalRef
	Scopes    []string
	Claims    *jwt.AccessClaims
}

// HasScope indica si el token fue emitido con el scope.
func (a *AccessContext) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// BearerToken extrae el token de un header Authorization.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// ValidateBearer valida el token en cada request, sin cache: firma y realm, revocación del jti,
// client habilitado y principal habilitado.
func (s *Server) ValidateBearer(ctx context.Context, raw string) (*AccessContext, error) {
	ac, err := s.validateBearer(ctx, raw)
	result := "ok"
	if err != nil {
		oe := AsError(err)
		result = oe.Hint
		if oe.Code == CodeServerError {
			result = CodeServerError
			logger.From(ctx).Error("bearer validation failed", logger.Realm(string(s.realm.Name)), logger.Err(oe.Err))
		}
		metrics.ResourceValidations.WithLabelValues(string(s.realm.Name), result).Inc()
		return nil, oe
	}
	metrics.ResourceValidations.WithLabelValues(string(s.realm.Name), result).Inc()
	return ac, nil
}

func (s *Server) validateBearer(ctx context.Context, raw string) (*AccessContext, error) {
	if raw == "" {
		return nil, InvalidToken("Missing \"Authorization\" header")
	}
	claims, err := s.realm.Verifier.ParseAccess(raw)
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return nil, InvalidToken("Access token has expired")
	case errors.Is(err, jwt.ErrWrongRealm):
		return nil, InvalidToken("Access token was issued for another realm")
	case err != nil:
		return nil, InvalidToken("Access token could not be verified")
	}

	revoked, err := s.realm.Store.AccessTokens().IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ServerError(err)
	}
	if revoked {
		return nil, InvalidToken("Access token has been revoked")
	}

	client, err := s.realm.Clients.Resolve(ctx, claims.ClientID())
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, InvalidToken("Client is no longer valid")
		}
		return nil, ServerError(err)
	}
	if !s.realm.Clients.IsEnabled(ctx, client) {
		return nil, InvalidToken("Client is no longer valid")
	}

	principal, err := claims.Principal()
	if err != nil {
		return nil, InvalidToken("Access token could not be verified")
	}
	ok, err := s.realm.Identity.PrincipalEnabled(ctx, principal)
	if err != nil {
		return nil, ServerError(err)
	}
	if !ok {
		return nil, InvalidToken("Principal is no longer valid")
	}

	return &AccessContext{
		Realm:     s.realm.Name,
		JTI:       claims.ID,
		ClientID:  client.ID,
		Principal: principal,
		Scopes:    claims.Scopes,
		Claims:    claims,
	}, nil
}
