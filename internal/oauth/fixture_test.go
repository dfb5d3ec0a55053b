package oauth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/dropDatabas3/tokencore/internal/cache"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/jwt"
	"github.com/dropDatabas3/tokencore/internal/oauth/identity"
	"github.com/dropDatabas3/tokencore/internal/oauth/registry"
	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/security/secretbox"
	"github.com/dropDatabas3/tokencore/internal/store/memory"
)

const (
	testIssuer    = "https://auth.test"
	userPassword  = "correct horse"
	visitorUser   = "visitor"
	visitorSecret = "visitor-pass"
)

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type fixture struct {
	t     *testing.T
	srv   *Server
	realm Realm
	store *memory.Store
	now   time.Time
}

// sharedBox: ambos realms comparten el codec, como en producción.
var sharedBox = func() *secretbox.Box {
	k, err := secretbox.GenerateKey()
	if err != nil {
		panic(err)
	}
	b, err := secretbox.New(k)
	if err != nil {
		panic(err)
	}
	return b
}()

func newFixture(t *testing.T, name types.Realm, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	keys, err := jwt.TestKeyPair()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	st := memory.New(name, []string{"read", "write"})
	f := &fixture{t: t, store: st, now: time.Now().UTC()}

	seedClient(t, st, &types.Client{ID: "svc", Confidential: true, GrantTypes: []types.GrantType{types.GrantClientCredentials}, Active: true}, "svc-secret")
	seedClient(t, st, &types.Client{ID: "web", Confidential: true, GrantTypes: []types.GrantType{types.GrantAuthorizationCode, types.GrantPassword}, RedirectURIs: []string{"https://web.example/cb"}, Active: true}, "web-secret")
	seedClient(t, st, &types.Client{ID: "other", Confidential: true, GrantTypes: []types.GrantType{types.GrantPassword}, Active: true}, "other-secret")
	seedClient(t, st, &types.Client{ID: "spa", GrantTypes: []types.GrantType{types.GrantAuthorizationCode}, RedirectURIs: []string{"https://spa.example/cb"}, Active: true}, "")
	seedClient(t, st, &types.Client{ID: "legacy", AllowPlainPKCE: true, RedirectURIs: []string{"https://a.example/cb", "https://b.example/cb"}, Active: true}, "")

	hash, err := password.Hash(fastParams, userPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	_ = st.Users().Save(ctx, &types.User{ID: "u-ana", Username: "ana", PasswordHash: hash, Enabled: true})
	_ = st.Users().Save(ctx, &types.User{ID: "u-bob", Username: "bob", PasswordHash: hash, Enabled: false})

	var (
		visitor  identity.VisitorBootstrap
		sessions *identity.VisitorSessions
	)
	if name == types.RealmFrontend {
		visitor = identity.VisitorBootstrap{Enabled: true, Username: visitorUser, Password: visitorSecret}
		sessions = identity.NewVisitorSessions(cache.NewMemory("test", 0), name, time.Hour)
	}
	verifier, err := identity.New(name, st.Users(), visitor, sessions)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	f.realm = Realm{
		Name:     name,
		Store:    st,
		Clients:  registry.New(name, st.Clients(), registry.StaticFeatures{}, registry.StaticOrganizations{}),
		Identity: verifier,
		Signer:   jwt.NewSigner(keys, testIssuer, name),
		Verifier: jwt.NewVerifier(keys, testIssuer, name),
		Codec:    sharedBox,
	}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.srv, err = NewServer(f.realm, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return f
}

func seedClient(t *testing.T, st *memory.Store, c *types.Client, secret string) {
	t.Helper()
	if secret != "" {
		salt, err := password.NewSalt()
		if err != nil {
			t.Fatalf("salt: %v", err)
		}
		c.SecretSalt = salt
		c.SecretDigest = password.DigestSecret(secret, salt)
	}
	if err := st.Clients().Save(context.Background(), c); err != nil {
		t.Fatalf("seed client %s: %v", c.ID, err)
	}
}

// authorize recorre authorize → consentimiento → code.
func (f *fixture) authorize(p AuthorizeParams, who types.PrincipalRef) string {
	f.t.Helper()
	ctx := context.Background()
	ar, err := f.srv.ValidateAuthorizationRequest(ctx, p)
	if err != nil {
		f.t.Fatalf("ValidateAuthorizationRequest: %v", err)
	}
	if ar.Phase() != PhaseConsentPending {
		f.t.Fatalf("phase = %s", ar.Phase())
	}
	ar.Approve(who)
	redirect, err := f.srv.CompleteAuthorizationRequest(ctx, ar)
	if err != nil {
		f.t.Fatalf("CompleteAuthorizationRequest: %v", err)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		f.t.Fatalf("redirect url: %v", err)
	}
	if p.State != "" && u.Query().Get("state") != p.State {
		f.t.Fatalf("state not echoed: %s", redirect)
	}
	code := u.Query().Get("code")
	if code == "" {
		f.t.Fatalf("no code in %s", redirect)
	}
	return code
}

func (f *fixture) token(req TokenRequest) (*TokenResponse, *Error) {
	f.t.Helper()
	resp, err := f.srv.Token(context.Background(), req)
	if err != nil {
		return nil, AsError(err)
	}
	return resp, nil
}

func (f *fixture) mustToken(req TokenRequest) *TokenResponse {
	f.t.Helper()
	resp, oe := f.token(req)
	if oe != nil {
		f.t.Fatalf("token %s: %v", req.GrantType, oe)
	}
	return resp
}

func (f *fixture) passwordLogin(username string) *TokenResponse {
	return f.mustToken(TokenRequest{
		GrantType: "password", ClientID: "web", ClientSecret: "web-secret",
		Username: username, Password: userPassword, Scope: "read",
	})
}

func expectOAuthError(t *testing.T, oe *Error, code, hint string) {
	t.Helper()
	if oe == nil {
		t.Fatalf("expected %s error, got success", code)
	}
	if oe.Code != code {
		t.Fatalf("code = %s, want %s (%v)", oe.Code, code, oe)
	}
	if hint != "" && oe.Hint != hint {
		t.Fatalf("hint = %q, want %q", oe.Hint, hint)
	}
}
