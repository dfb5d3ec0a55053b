package oauth

import (
	"context"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// grantClientCredentials: sin principal y nunca con refresh token.
func (s *Server) grantClientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, types.GrantClientCredentials)
	if err != nil {
		return nil, err
	}
	if !client.Confidential {
		return nil, InvalidClient()
	}
	scopes, err := s.validateScopes(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, types.GrantClientCredentials, client, types.PrincipalRef{}, scopes, false)
}
