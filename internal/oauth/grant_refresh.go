package oauth

import (
	"context"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// grantRefreshToken rota siempre: revoca el par anterior y emite uno nuevo.
func (s *Server) grantRefreshToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, types.GrantRefreshToken)
	if err != nil {
		return nil, err
	}
	if req.RefreshToken == "" {
		return nil, InvalidRequest("refresh_token")
	}

	var p refreshPayload
	if err := open(s.realm.Codec, req.RefreshToken, &p); err != nil {
		return nil, InvalidRequest("refresh_token", "Cannot decrypt the refresh token")
	}
	now := s.now()
	if p.expired(now) {
		return nil, InvalidRequest("refresh_token", "Token has expired")
	}

	repo := s.realm.Store.RefreshTokens()
	rt, err := repo.Get(ctx, p.RefreshTokenID)
	switch {
	case repository.IsNotFound(err):
		return nil, InvalidRequest("refresh_token", "Token has been revoked")
	case err != nil:
		return nil, ServerError(err)
	case rt.Revoked:
		return nil, InvalidRequest("refresh_token", "Token has been revoked")
	case rt.Expired(now):
		return nil, InvalidRequest("refresh_token", "Token has expired")
	}

	if parentClient := s.parentClientID(ctx, rt, &p); parentClient != client.ID {
		return nil, InvalidRequest("refresh_token", "Token is not linked to client")
	}

	principal, err := p.principal()
	if err != nil {
		return nil, InvalidRequest("refresh_token", "Cannot decrypt the refresh token")
	}
	ok, err := s.realm.Identity.PrincipalEnabled(ctx, principal)
	if err != nil {
		return nil, ServerError(err)
	}
	if !ok {
		return nil, principalDisabled(principal)
	}

	scopes, err := narrowScopes(p.Scopes, req.Scope)
	if err != nil {
		return nil, err
	}

	// compare-and-set: sólo una redención concurrente gana.
	won, err := repo.Revoke(ctx, rt.ID)
	if err != nil {
		return nil, ServerError(err)
	}
	if !won {
		return nil, InvalidRequest("refresh_token", "Token has been revoked")
	}
	if _, err := s.realm.Store.AccessTokens().Revoke(ctx, rt.AccessTokenID); err != nil {
		return nil, ServerError(err)
	}
	logger.From(ctx).Debug("refresh token rotated", logger.JTI(rt.AccessTokenID))
	s.emit(ctx, audit.Event{Kind: audit.TokenRevoked, ClientID: client.ID, Principal: principal, JTI: rt.AccessTokenID, TokenType: "access_token", Reason: "rotation"})
	s.emit(ctx, audit.Event{Kind: audit.TokenRevoked, ClientID: client.ID, Principal: principal, TokenType: "refresh_token", Reason: "rotation"})

	return s.respond(ctx, types.GrantRefreshToken, client, principal, scopes, true)
}

// parentClientID prefiere el access token persistido; el payload es el respaldo.
func (s *Server) parentClientID(ctx context.Context, rt *types.RefreshToken, p *refreshPayload) string {
	at, err := s.realm.Store.AccessTokens().Get(ctx, rt.AccessTokenID)
	if err == nil {
		return at.ClientID
	}
	return p.ClientID
}

// narrowScopes permite pedir un subconjunto de los scopes originales, nunca ampliarlos.
func narrowScopes(original []string, requested string) ([]string, error) {
	if requested == "" {
		return append([]string{}, original...), nil
	}
	allowed := make(map[string]bool, len(original))
	for _, sc := range original {
		allowed[sc] = true
	}
	out := []string{}
	for _, sc := range splitScopes(requested) {
		if !allowed[sc] {
			return nil, InvalidScope(sc)
		}
		out = append(out, sc)
	}
	return out, nil
}
