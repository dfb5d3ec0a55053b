package oauth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
)

// RevokeRequest sigue RFC 7009.
type RevokeRequest struct {
	ClientID      string
	ClientSecret  string
	Token         string
	TokenTypeHint string // access_token | refresh_token
}

// Revoke es idempotente: tokens desconocidos, ajenos o ya revocados no son error.
func (s *Server) Revoke(ctx context.Context, req RevokeRequest) error {
	if req.ClientID == "" {
		return InvalidRequest("client_id")
	}
	client, err := s.realm.Clients.Resolve(ctx, req.ClientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return InvalidClient()
		}
		return ServerError(err)
	}
	if !s.realm.Clients.IsEnabled(ctx, client) || !s.realm.Clients.ValidateSecret(client, req.ClientSecret) {
		return InvalidClient()
	}
	if req.Token == "" {
		return InvalidRequest("token")
	}

	order := []func(context.Context, string, string) (bool, error){s.revokeAccess, s.revokeRefresh}
	if req.TokenTypeHint == "refresh_token" {
		order[0], order[1] = order[1], order[0]
	}
	for _, try := range order {
		handled, err := try(ctx, client.ID, req.Token)
		if err != nil {
			return ServerError(err)
		}
		if handled {
			return nil
		}
	}
	logger.From(ctx).Debug("revoke: unknown token", logger.ClientID(client.ID))
	return nil
}

func (s *Server) revokeAccess(ctx context.Context, clientID, raw string) (bool, error) {
	claims, err := s.realm.Verifier.ParseAccess(raw)
	if err != nil {
		return false, nil
	}
	if claims.ClientID() != clientID {
		return true, nil
	}
	won, err := s.realm.Store.AccessTokens().Revoke(ctx, claims.ID)
	if err != nil {
		return true, err
	}
	if won {
		p, _ := claims.Principal()
		s.emit(ctx, audit.Event{Kind: audit.TokenRevoked, ClientID: clientID, Principal: p, JTI: claims.ID, TokenType: "access_token", Reason: "revocation"})
	}
	return true, nil
}

func (s *Server) revokeRefresh(ctx context.Context, clientID, raw string) (bool, error) {
	var p refreshPayload
	if err := open(s.realm.Codec, raw, &p); err != nil {
		return false, nil
	}
	if p.ClientID != clientID {
		return true, nil
	}
	won, err := s.realm.Store.RefreshTokens().Revoke(ctx, p.RefreshTokenID)
	if err != nil {
		return true, err
	}
	if _, err := s.realm.Store.AccessTokens().Revoke(ctx, p.AccessTokenID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return true, err
	}
	if won {
		principal, _ := p.principal()
		s.emit(ctx, audit.Event{Kind: audit.TokenRevoked, ClientID: clientID, Principal: principal, JTI: p.AccessTokenID, TokenType: "refresh_token", Reason: "revocation"})
	}
	return true, nil
}
