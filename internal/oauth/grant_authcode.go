package oauth

import (
	"context"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/pkce"
)

// grantAuthorizationCode canjea un code de un solo uso por access + refresh.
func (s *Server) grantAuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, types.GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, InvalidRequest("code")
	}

	var p authCodePayload
	if err := open(s.realm.Codec, req.Code, &p); err != nil {
		return nil, InvalidRequest("code", "Cannot decrypt the authorization code")
	}
	if p.expired(s.now()) {
		return nil, InvalidRequest("code", "Authorization code has expired")
	}
	codes := s.realm.Store.AuthCodes()
	revoked, err := codes.IsRevoked(ctx, p.AuthCodeID)
	if err != nil {
		return nil, ServerError(err)
	}
	if revoked {
		return nil, InvalidRequest("code", "Authorization code has been revoked")
	}
	if p.ClientID != client.ID {
		return nil, InvalidRequest("code", "Authorization code was not issued to this client")
	}

	if p.RedirectURI != "" {
		if req.RedirectURI == "" {
			return nil, InvalidRequest("redirect_uri")
		}
		if req.RedirectURI != p.RedirectURI {
			return nil, InvalidRequest("redirect_uri", "Invalid redirect URI")
		}
	}

	if err := verifyCodeVerifier(&p, req.CodeVerifier); err != nil {
		return nil, err
	}

	principal, err := p.principal()
	if err != nil {
		return nil, InvalidRequest("code", "Cannot decrypt the authorization code")
	}
	ok, err := s.realm.Identity.PrincipalEnabled(ctx, principal)
	if err != nil {
		return nil, ServerError(err)
	}
	if !ok {
		return nil, principalDisabled(principal)
	}

	// compare-and-set: una sola redención gana.
	won, err := codes.Revoke(ctx, p.AuthCodeID)
	if err != nil {
		return nil, ServerError(err)
	}
	if !won {
		return nil, InvalidRequest("code", "Authorization code has been revoked")
	}

	resp, err := s.respond(ctx, types.GrantAuthorizationCode, client, principal, p.Scopes, true)
	if err != nil {
		return nil, err
	}
	s.upgradeVisitor(ctx, principal, req.VisitorToken)
	return resp, nil
}

// verifyCodeVerifier: code con challenge exige verifier válido; code sin challenge rechaza
// cualquier verifier (downgrade).
func verifyCodeVerifier(p *authCodePayload, verifier string) error {
	if p.CodeChallenge == "" {
		if verifier != "" {
			return InvalidRequest("code_challenge", "code_verifier received when no code_challenge is present")
		}
		return nil
	}
	if verifier == "" {
		return InvalidRequest("code_verifier")
	}
	if !pkce.ValidFormat(verifier) {
		return InvalidRequest("code_verifier", "Code Verifier must follow the specifications of RFC-7636.")
	}
	method, err := pkce.ParseMethod(p.CodeChallengeMethod)
	if err != nil {
		return ServerError(err)
	}
	if !pkce.Verify(verifier, p.CodeChallenge, method) {
		return InvalidGrant("Failed to verify `code_verifier`.")
	}
	return nil
}
