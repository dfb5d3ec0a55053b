package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

func TestClientCredentials_NoRefreshToken(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	resp := f.mustToken(TokenRequest{GrantType: "client_credentials", ClientID: "svc", ClientSecret: "svc-secret", Scope: "read write"})
	if resp.TokenType != "Bearer" || resp.RefreshToken != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	ac, err := f.srv.ValidateBearer(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateBearer: %v", err)
	}
	if !ac.Principal.IsZero() || ac.Claims.Subject != "" {
		t.Fatalf("client_credentials tokens carry no principal: %+v", ac.Principal)
	}
}

func TestClientCredentials_ClientFailuresAreUniform(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	cases := []TokenRequest{
		{GrantType: "client_credentials", ClientID: "ghost", ClientSecret: "x"},
		{GrantType: "client_credentials", ClientID: "svc", ClientSecret: "wrong"},
		{GrantType: "client_credentials", ClientID: "web", ClientSecret: "web-secret"}, // grant no soportado
		{GrantType: "client_credentials", ClientID: "legacy"},                          // público
	}
	for _, req := range cases {
		_, oe := f.token(req)
		expectOAuthError(t, oe, CodeInvalidClient, "")
		if oe.Message != "Client authentication failed" || oe.HTTPStatus != http.StatusUnauthorized {
			t.Fatalf("client failures must be indistinguishable: %+v", oe)
		}
	}

	c, _ := f.store.Clients().Get(context.Background(), "svc")
	if c.LastUsedAt != nil {
		t.Fatalf("last_used_at must not change on failure")
	}
}

func TestUnsupportedGrantType(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, oe := f.token(TokenRequest{GrantType: "implicit", ClientID: "web"})
	expectOAuthError(t, oe, CodeUnsupportedGrantType, "")
}

func TestInvalidScope(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, oe := f.token(TokenRequest{GrantType: "client_credentials", ClientID: "svc", ClientSecret: "svc-secret", Scope: "read admin"})
	expectOAuthError(t, oe, CodeInvalidScope, "Check the `admin` scope")
}

func TestPassword_Success(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	resp := f.passwordLogin("ana")
	if resp.RefreshToken == "" {
		t.Fatalf("password grant issues a refresh token")
	}
	ac, err := f.srv.ValidateBearer(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateBearer: %v", err)
	}
	if ac.Claims.Subject != "u-ana" {
		t.Fatalf("sub = %s", ac.Claims.Subject)
	}
}

func TestPassword_DisabledAccount(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, oe := f.token(TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: "bob", Password: userPassword})
	expectOAuthError(t, oe, CodeInvalidCredentials, "")
	if oe.Message != "Account is locked." {
		t.Fatalf("message = %q", oe.Message)
	}
}

func TestPassword_BadCredentialsAreUniform(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	for _, creds := range [][2]string{{"ana", "wrong"}, {"ghost", userPassword}} {
		_, oe := f.token(TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: creds[0], Password: creds[1]})
		expectOAuthError(t, oe, CodeInvalidCredentials, "")
		if oe.Message != "The user credentials were incorrect." {
			t.Fatalf("message = %q", oe.Message)
		}
	}
	_, oe := f.token(TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: "ana"})
	expectOAuthError(t, oe, CodeInvalidRequest, "Check the `password` parameter")
}

func TestPassword_VisitorBootstrap(t *testing.T) {
	f := newFixture(t, types.RealmFrontend)
	login := func() *AccessContext {
		resp := f.mustToken(TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: visitorUser, Password: visitorSecret})
		ac, err := f.srv.ValidateBearer(context.Background(), resp.AccessToken)
		if err != nil {
			t.Fatalf("ValidateBearer: %v", err)
		}
		return ac
	}
	a, b := login(), login()
	if !a.Principal.IsVisitor() || !strings.HasPrefix(a.Claims.Subject, "visitor:") {
		t.Fatalf("expected visitor principal, got %v (sub %s)", a.Principal, a.Claims.Subject)
	}
	if a.Principal == b.Principal {
		t.Fatalf("every bootstrap must mint a new visitor")
	}
}

func TestPassword_VisitorBootstrapOnlyInFrontend(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, oe := f.token(TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: visitorUser, Password: visitorSecret})
	expectOAuthError(t, oe, CodeInvalidCredentials, "")
}

func TestRefresh_RotationAndReplay(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	ctx := context.Background()
	first := f.passwordLogin("ana")

	second := f.mustToken(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: first.RefreshToken})
	if second.AccessToken == first.AccessToken || second.RefreshToken == first.RefreshToken {
		t.Fatalf("rotation must produce a new pair")
	}
	oldAC, _ := f.realm.Verifier.ParseAccess(first.AccessToken)
	newAC, _ := f.realm.Verifier.ParseAccess(second.AccessToken)
	if oldAC.ID == newAC.ID {
		t.Fatalf("jti must change on rotation")
	}

	if _, err := f.srv.ValidateBearer(ctx, first.AccessToken); err == nil {
		t.Fatalf("old access token must stop authenticating immediately")
	}
	if _, err := f.srv.ValidateBearer(ctx, second.AccessToken); err != nil {
		t.Fatalf("new access token: %v", err)
	}

	_, oe := f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: first.RefreshToken})
	expectOAuthError(t, oe, CodeInvalidRequest, "Token has been revoked")
}

func TestRefresh_ConcurrentRotationHasSingleWinner(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	first := f.passwordLogin("ana")

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.srv.Token(context.Background(), TokenRequest{
				GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: first.RefreshToken,
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected exactly one rotation, got %d", ok)
	}
}

func TestRefresh_ClientMismatch(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	first := f.passwordLogin("ana")
	_, oe := f.token(TokenRequest{GrantType: "refresh_token", ClientID: "other", ClientSecret: "other-secret", RefreshToken: first.RefreshToken})
	expectOAuthError(t, oe, CodeInvalidRequest, "Token is not linked to client")
}

func TestRefresh_Failures(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	_, oe := f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: "garbage"})
	expectOAuthError(t, oe, CodeInvalidRequest, "Cannot decrypt the refresh token")

	_, oe = f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret"})
	expectOAuthError(t, oe, CodeInvalidRequest, "Check the `refresh_token` parameter")

	// usuario deshabilitado entre emisión y refresh
	first := f.passwordLogin("ana")
	u, _ := f.store.Users().GetByID(context.Background(), "u-ana")
	u.Enabled = false
	_ = f.store.Users().Save(context.Background(), u)
	_, oe = f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: first.RefreshToken})
	expectOAuthError(t, oe, CodeInvalidCredentials, "")
}

func TestRefresh_ScopesCanOnlyNarrow(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	first := f.passwordLogin("ana")
	_, oe := f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: first.RefreshToken, Scope: "write"})
	expectOAuthError(t, oe, CodeInvalidScope, "")
}

func TestIdentifierCollision_Retries(t *testing.T) {
	ids := []string{"dup", "dup", "dup", "fresh-1", "fresh-2"}
	var i int32
	gen := func() (string, error) {
		n := atomic.AddInt32(&i, 1) - 1
		if int(n) < len(ids) {
			return ids[n], nil
		}
		return "id-" + string(rune('a'+n)), nil
	}
	f := newFixture(t, types.RealmBackend, WithIdentifierGenerator(gen))
	// ocupa "dup"
	_ = f.store.AccessTokens().Persist(context.Background(), &types.AccessToken{ID: "dup", ClientID: "x"})

	resp := f.mustToken(TokenRequest{GrantType: "client_credentials", ClientID: "svc", ClientSecret: "svc-secret"})
	ac, err := f.srv.ValidateBearer(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateBearer: %v", err)
	}
	if ac.JTI != "fresh-1" {
		t.Fatalf("jti = %s, want fresh-1", ac.JTI)
	}
	prev, _ := f.store.AccessTokens().Get(context.Background(), "dup")
	if prev.ClientID != "x" {
		t.Fatalf("collision must never overwrite")
	}
}

func TestIdentifierCollision_ExhaustedIsServerError(t *testing.T) {
	f := newFixture(t, types.RealmBackend, WithIdentifierGenerator(func() (string, error) { return "always", nil }))
	_ = f.store.AccessTokens().Persist(context.Background(), &types.AccessToken{ID: "always", ClientID: "x"})

	_, oe := f.token(TokenRequest{GrantType: "client_credentials", ClientID: "svc", ClientSecret: "svc-secret"})
	expectOAuthError(t, oe, CodeServerError, "")
	if !errors.Is(oe, repository.ErrIdentifierCollision) {
		t.Fatalf("cause must be kept for logs: %v", oe.Err)
	}
	if strings.Contains(oe.Message, "collision") {
		t.Fatalf("internal detail leaked to caller: %q", oe.Message)
	}
}

func TestTTLOverrides(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	r := f.realm
	r.TTLs = TTLs{
		Access:         30 * time.Minute,
		PerGrantAccess: map[types.GrantType]time.Duration{types.GrantClientCredentials: 5 * time.Minute},
	}
	srv, err := NewServer(r)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx := context.Background()

	cc, err := srv.Token(ctx, TokenRequest{GrantType: "client_credentials", ClientID: "svc", ClientSecret: "svc-secret"})
	if err != nil || cc.ExpiresIn != 300 {
		t.Fatalf("client_credentials expires_in = %v (%v)", cc, err)
	}
	pw, err := srv.Token(ctx, TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: "ana", Password: userPassword})
	if err != nil || pw.ExpiresIn != 1800 {
		t.Fatalf("password expires_in = %v (%v)", pw, err)
	}
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t, types.RealmBackend)
	first := f.passwordLogin("ana")

	f.now = f.now.Add(DefaultRefreshTTL + time.Minute)
	_, oe := f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: first.RefreshToken})
	expectOAuthError(t, oe, CodeInvalidRequest, "Token has expired")
}

func TestRefresh_VisitorSessionEnded(t *testing.T) {
	f := newFixture(t, types.RealmFrontend)
	ctx := context.Background()
	resp := f.mustToken(TokenRequest{GrantType: "password", ClientID: "web", ClientSecret: "web-secret", Username: visitorUser, Password: visitorSecret})
	ac, err := f.srv.ValidateBearer(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateBearer: %v", err)
	}
	if err := f.realm.Identity.EndVisitor(ctx, ac.Principal); err != nil {
		t.Fatalf("EndVisitor: %v", err)
	}

	_, oe := f.token(TokenRequest{GrantType: "refresh_token", ClientID: "web", ClientSecret: "web-secret", RefreshToken: resp.RefreshToken})
	expectOAuthError(t, oe, CodeInvalidCredentials, "")
	if oe.Message != "The user credentials were incorrect." {
		t.Fatalf("message = %q, visitor must not be reported as locked", oe.Message)
	}
}
