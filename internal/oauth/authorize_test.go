package oauth

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/pkce"
)

func spaParams(challenge, method string) AuthorizeParams {
	return AuthorizeParams{
		ResponseType:        "code",
		ClientID:            "spa",
		RedirectURI:         "https://spa.example/cb",
		Scope:               "read",
		State:               "xyz",
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
	}
}

func TestAuthCode_PublicClientS256(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	verifier, challenge, err := pkce.NewVerifier()
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	code := f.authorize(spaParams(challenge, "S256"), types.UserRef("u-ana"))

	resp := f.mustToken(TokenRequest{
		GrantType: "authorization_code", ClientID: "spa", Code: code,
		RedirectURI: "https://spa.example/cb", CodeVerifier: verifier,
	})
	if resp.TokenType != "Bearer" || resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ExpiresIn != int64(DefaultAccessTTL/time.Second) {
		t.Fatalf("expires_in = %d", resp.ExpiresIn)
	}

	ac, err := f.srv.ValidateBearer(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateBearer: %v", err)
	}
	if ac.Principal != types.UserRef("u-ana") || ac.ClientID != "spa" || !ac.HasScope("read") {
		t.Fatalf("unexpected access context: %+v", ac)
	}

	c, _ := f.store.Clients().Get(context.Background(), "spa")
	if c.LastUsedAt == nil {
		t.Fatalf("last_used_at must be set after a successful exchange")
	}
}

func TestAuthCode_SingleRedemption(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	code := f.authorize(AuthorizeParams{ResponseType: "code", ClientID: "web", State: "s"}, types.UserRef("u-ana"))

	req := TokenRequest{GrantType: "authorization_code", ClientID: "web", ClientSecret: "web-secret", Code: code}
	f.mustToken(req)
	_, oe := f.token(req)
	expectOAuthError(t, oe, CodeInvalidRequest, "Authorization code has been revoked")
}

func TestAuthCode_ConcurrentRedemptionHasSingleWinner(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	code := f.authorize(AuthorizeParams{ResponseType: "code", ClientID: "web"}, types.UserRef("u-ana"))

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.srv.Token(context.Background(), TokenRequest{
				GrantType: "authorization_code", ClientID: "web", ClientSecret: "web-secret", Code: code,
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", ok)
	}
}

func TestAuthCode_PlainForbiddenByPolicy(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	verifier, _, _ := pkce.NewVerifier()
	_, err := f.srv.ValidateAuthorizationRequest(context.Background(), spaParams(verifier, "plain"))
	expectOAuthError(t, AsError(err), CodeInvalidRequest, "Plain code challenge method is not allowed for this client")
}

func TestAuthCode_PlainAllowedByPolicy(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	verifier, _, _ := pkce.NewVerifier()
	code := f.authorize(AuthorizeParams{
		ResponseType: "code", ClientID: "legacy", RedirectURI: "https://b.example/cb",
		CodeChallenge: verifier, CodeChallengeMethod: "plain",
	}, types.UserRef("u-ana"))
	f.mustToken(TokenRequest{
		GrantType: "authorization_code", ClientID: "legacy", Code: code,
		RedirectURI: "https://b.example/cb", CodeVerifier: verifier,
	})
}

func TestAuthCode_PublicClientRequiresChallenge(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, err := f.srv.ValidateAuthorizationRequest(context.Background(), spaParams("", ""))
	expectOAuthError(t, AsError(err), CodeInvalidRequest, "Code challenge must be provided for public clients")
}

func TestAuthCode_ChallengeFormatAndMethod(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, err := f.srv.ValidateAuthorizationRequest(context.Background(), spaParams("too-short", "S256"))
	expectOAuthError(t, AsError(err), CodeInvalidRequest, "Code challenge must follow the specifications of RFC-7636.")

	_, challenge, _ := pkce.NewVerifier()
	_, err = f.srv.ValidateAuthorizationRequest(context.Background(), spaParams(challenge, "S512"))
	expectOAuthError(t, AsError(err), CodeInvalidRequest, "")
}

func TestAuthCode_RedirectMismatchNeverRedirects(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, challenge, _ := pkce.NewVerifier()
	p := spaParams(challenge, "S256")
	p.RedirectURI = "https://evil.example/cb"

	_, err := f.srv.ValidateAuthorizationRequest(context.Background(), p)
	oe := AsError(err)
	expectOAuthError(t, oe, CodeInvalidClient, "")
	if oe.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("status = %d", oe.HTTPStatus)
	}
	if _, ok := oe.RedirectURL(); ok {
		t.Fatalf("redirect mismatch must not redirect")
	}

	// omitido con varios URIs registrados: tampoco es válido
	_, err = f.srv.ValidateAuthorizationRequest(context.Background(), AuthorizeParams{
		ResponseType: "code", ClientID: "legacy", CodeChallenge: challenge, CodeChallengeMethod: "S256",
	})
	expectOAuthError(t, AsError(err), CodeInvalidClient, "")
}

func TestAuthCode_UnknownScopeRedirects(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, challenge, _ := pkce.NewVerifier()
	p := spaParams(challenge, "S256")
	p.Scope = "read admin"
	_, err := f.srv.ValidateAuthorizationRequest(context.Background(), p)
	oe := AsError(err)
	expectOAuthError(t, oe, CodeInvalidScope, "Check the `admin` scope")
	u, ok := oe.RedirectURL()
	if !ok {
		t.Fatalf("scope errors are delivered by redirect")
	}
	parsed, _ := url.Parse(u)
	if parsed.Query().Get("error") != CodeInvalidScope || parsed.Query().Get("state") != "xyz" {
		t.Fatalf("unexpected redirect: %s", u)
	}
}

func TestAuthCode_Denied(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	ar, err := f.srv.ValidateAuthorizationRequest(context.Background(), AuthorizeParams{ResponseType: "code", ClientID: "web", State: "s1"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	ar.Deny(types.UserRef("u-ana"))
	redirect, err := f.srv.CompleteAuthorizationRequest(context.Background(), ar)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	u, _ := url.Parse(redirect)
	q := u.Query()
	if u.Host != "web.example" || q.Get("error") != "access_denied" || q.Get("hint") != "The user denied the request" || q.Get("state") != "s1" {
		t.Fatalf("unexpected redirect: %s", redirect)
	}
	if q.Get("code") != "" {
		t.Fatalf("denied request must not carry a code")
	}
}

func TestAuthCode_ExchangeFailures(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	verifier, challenge, _ := pkce.NewVerifier()
	other, _, _ := pkce.NewVerifier()

	newCode := func() string { return f.authorize(spaParams(challenge, "S256"), types.UserRef("u-ana")) }
	base := func(code string) TokenRequest {
		return TokenRequest{GrantType: "authorization_code", ClientID: "spa", Code: code, RedirectURI: "https://spa.example/cb", CodeVerifier: verifier}
	}

	_, oe := f.token(base("not-a-code"))
	expectOAuthError(t, oe, CodeInvalidRequest, "Cannot decrypt the authorization code")

	req := base(newCode())
	req.CodeVerifier = ""
	_, oe = f.token(req)
	expectOAuthError(t, oe, CodeInvalidRequest, "Check the `code_verifier` parameter")

	req = base(newCode())
	req.CodeVerifier = other
	_, oe = f.token(req)
	expectOAuthError(t, oe, CodeInvalidGrant, "Failed to verify `code_verifier`.")

	req = base(newCode())
	req.CodeVerifier = "short"
	_, oe = f.token(req)
	expectOAuthError(t, oe, CodeInvalidRequest, "Code Verifier must follow the specifications of RFC-7636.")

	req = base(newCode())
	req.RedirectURI = ""
	_, oe = f.token(req)
	expectOAuthError(t, oe, CodeInvalidRequest, "Check the `redirect_uri` parameter")

	// code emitido a spa, canjeado por legacy (también público)
	req = base(newCode())
	req.ClientID = "legacy"
	_, oe = f.token(req)
	expectOAuthError(t, oe, CodeInvalidRequest, "Authorization code was not issued to this client")

	code := newCode()
	f.now = f.now.Add(DefaultAuthCodeTTL + time.Second)
	_, oe = f.token(base(code))
	expectOAuthError(t, oe, CodeInvalidRequest, "Authorization code has expired")
}

func TestAuthCode_VerifierWithoutChallengeIsRejected(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	verifier, _, _ := pkce.NewVerifier()
	code := f.authorize(AuthorizeParams{ResponseType: "code", ClientID: "web"}, types.UserRef("u-ana"))
	_, oe := f.token(TokenRequest{
		GrantType: "authorization_code", ClientID: "web", ClientSecret: "web-secret", Code: code, CodeVerifier: verifier,
	})
	expectOAuthError(t, oe, CodeInvalidRequest, "code_verifier received when no code_challenge is present")
}

func TestAuthorize_RequestShape(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	ctx := context.Background()

	_, err := f.srv.ValidateAuthorizationRequest(ctx, AuthorizeParams{ResponseType: "code"})
	expectOAuthError(t, AsError(err), CodeInvalidRequest, "Check the `client_id` parameter")

	_, err = f.srv.ValidateAuthorizationRequest(ctx, AuthorizeParams{ResponseType: "token", ClientID: "web"})
	expectOAuthError(t, AsError(err), CodeUnsupportedResponse, "")

	_, err = f.srv.ValidateAuthorizationRequest(ctx, AuthorizeParams{ResponseType: "code", ClientID: "ghost"})
	expectOAuthError(t, AsError(err), CodeInvalidClient, "")

	// svc no soporta authorization_code
	_, err = f.srv.ValidateAuthorizationRequest(ctx, AuthorizeParams{ResponseType: "code", ClientID: "svc"})
	expectOAuthError(t, AsError(err), CodeInvalidClient, "")
}
