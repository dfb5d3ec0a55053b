package oauth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/tokencore/internal/audit"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/oauth/identity"
)

func (s *Server) grantPassword(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, types.GrantPassword)
	if err != nil {
		return nil, err
	}
	scopes, err := s.validateScopes(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	if req.Username == "" {
		return nil, InvalidRequest("username")
	}
	if req.Password == "" {
		return nil, InvalidRequest("password")
	}

	principal, err := s.realm.Identity.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		failed := audit.Event{Kind: audit.LoginFailed, GrantType: types.GrantPassword, ClientID: client.ID, Username: req.Username}
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			failed.Reason = "account_locked"
			s.emit(ctx, failed)
			return nil, AccountLocked()
		case errors.Is(err, identity.ErrInvalidCredentials):
			failed.Reason = "invalid_credentials"
			s.emit(ctx, failed)
			return nil, InvalidCredentials()
		default:
			return nil, ServerError(err)
		}
	}
	s.emit(ctx, audit.Event{Kind: audit.LoginSucceeded, GrantType: types.GrantPassword, ClientID: client.ID, Principal: principal, Username: req.Username})

	resp, err := s.respond(ctx, types.GrantPassword, client, principal, scopes, true)
	if err != nil {
		return nil, err
	}
	s.upgradeVisitor(ctx, principal, req.VisitorToken)
	return resp, nil
}
