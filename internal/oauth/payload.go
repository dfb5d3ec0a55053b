package oauth

import (
	"encoding/json"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/secretbox"
)

// authCodePayload es el contenido cifrado que viaja como valor público del code.
type authCodePayload struct {
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	AuthCodeID          string   `json:"auth_code_id"`
	Scopes              []string `json:"scopes"`
	PrincipalType       string   `json:"pty,omitempty"`
	PrincipalID         string   `json:"pid,omitempty"`
	ExpireTime          int64    `json:"expire_time"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
}

// refreshPayload es el contenido cifrado del refresh token.
type refreshPayload struct {
	ClientID       string   `json:"client_id"`
	RefreshTokenID string   `json:"refresh_token_id"`
	AccessTokenID  string   `json:"access_token_id"`
	Scopes         []string `json:"scopes"`
	PrincipalType  string   `json:"pty,omitempty"`
	PrincipalID    string   `json:"pid,omitempty"`
	ExpireTime     int64    `json:"expire_time"`
}

func (p *authCodePayload) principal() (types.PrincipalRef, error) {
	return types.ParsePrincipal(p.PrincipalType, p.PrincipalID)
}

func (p *refreshPayload) principal() (types.PrincipalRef, error) {
	return types.ParsePrincipal(p.PrincipalType, p.PrincipalID)
}

func (p *authCodePayload) expired(now time.Time) bool {
	return now.Unix() >= p.ExpireTime
}

func (p *refreshPayload) expired(now time.Time) bool {
	return now.Unix() >= p.ExpireTime
}

func newAuthCodePayload(c *types.AuthCode) authCodePayload {
	return authCodePayload{
		ClientID:            c.ClientID,
		RedirectURI:         c.RedirectURI,
		AuthCodeID:          c.ID,
		Scopes:              c.Scopes,
		PrincipalType:       c.Principal.Kind().String(),
		PrincipalID:         c.Principal.ID(),
		ExpireTime:          c.ExpiresAt.Unix(),
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: c.CodeChallengeMethod,
	}
}

func newRefreshPayload(rt *types.RefreshToken, at *types.AccessToken) refreshPayload {
	return refreshPayload{
		ClientID:       at.ClientID,
		RefreshTokenID: rt.ID,
		AccessTokenID:  at.ID,
		Scopes:         at.Scopes,
		PrincipalType:  at.Principal.Kind().String(),
		PrincipalID:    at.Principal.ID(),
		ExpireTime:     rt.ExpiresAt.Unix(),
	}
}

func seal(box *secretbox.Box, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return box.Seal(raw)
}

// open descifra y decodifica; cualquier falla es secretbox.ErrDecrypt.
func open(box *secretbox.Box, sealed string, v any) error {
	raw, err := box.Open(sealed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return secretbox.ErrDecrypt
	}
	return nil
}
