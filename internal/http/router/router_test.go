package router_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokencore/internal/app"
	"github.com/dropDatabas3/tokencore/internal/config"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/security/pkce"
)

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type env struct {
	t   *testing.T
	srv *httptest.Server
	app *app.App
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Realms.Backend.Scopes = []string{"read", "admin"}
	cfg.Realms.Frontend.Scopes = []string{"read", "write"}
	cfg.Realms.Frontend.Visitor.Enabled = true
	cfg.Realms.Frontend.Visitor.Username = "visitor"
	cfg.Realms.Frontend.Visitor.Password = "visitor-pass"
	require.NoError(t, cfg.Validate())

	reg := prometheus.NewRegistry()
	a, err := app.New(ctx, cfg, app.WithPrometheus(reg, reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	for _, realm := range types.Realms {
		_, _, err := app.SeedRealm(ctx, a.Stores[realm], app.RealmSeed{
			Clients: []app.ClientSeed{
				{ID: "web", Secret: "web-secret", GrantTypes: []string{"authorization_code", "password", "refresh_token"}, RedirectURIs: []string{"https://web.example/cb"}},
				{ID: "spa", GrantTypes: []string{"authorization_code"}, RedirectURIs: []string{"https://spa.example/cb"}},
				{ID: "svc", Secret: "svc-secret", GrantTypes: []string{"client_credentials"}},
			},
		})
		require.NoError(t, err)
		hash, err := password.Hash(fastParams, "correct horse")
		require.NoError(t, err)
		require.NoError(t, a.Stores[realm].Users().Save(ctx, &types.User{ID: "u-ana", Username: "ana", PasswordHash: hash, Enabled: true}))
	}

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)
	return &env{t: t, srv: srv, app: a}
}

func (e *env) client() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func (e *env) post(path string, form url.Values) (*http.Response, map[string]any) {
	e.t.Helper()
	resp, err := e.client().PostForm(e.srv.URL+path, form)
	require.NoError(e.t, err)
	return resp, decode(e.t, resp)
}

func (e *env) get(path, bearer string) (*http.Response, map[string]any) {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(e.t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := e.client().Do(req)
	require.NoError(e.t, err)
	return resp, decode(e.t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(b) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(b, &out), string(b))
	}
	return out
}

func (e *env) login(realm string) map[string]any {
	e.t.Helper()
	resp, body := e.post("/"+realm+"/token", url.Values{
		"grant_type": {"password"}, "client_id": {"web"}, "client_secret": {"web-secret"},
		"username": {"ana"}, "password": {"correct horse"}, "scope": {"read"},
	})
	require.Equal(e.t, http.StatusOK, resp.StatusCode, body)
	return body
}

func TestToken_PasswordGrantAndProtectedResource(t *testing.T) {
	e := newEnv(t)
	resp, body := e.post("/frontend/token", url.Values{
		"grant_type": {"password"}, "client_id": {"web"}, "client_secret": {"web-secret"},
		"username": {"ana"}, "password": {"correct horse"}, "scope": {"read"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "Bearer", body["token_type"])
	assert.NotEmpty(t, body["refresh_token"])

	resp, me := e.get("/frontend/api/me", body["access_token"].(string))
	require.Equal(t, http.StatusOK, resp.StatusCode, me)
	assert.Equal(t, "u-ana", me["sub"])
	assert.Equal(t, "frontend", me["realm"])
	assert.Equal(t, "web", me["client_id"])
}

func TestToken_ErrorEnvelope(t *testing.T) {
	e := newEnv(t)

	resp, body := e.post("/backend/token", url.Values{"grant_type": {"implicit"}, "client_id": {"web"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported_grant_type", body["error"])
	assert.Equal(t, body["message"], body["error_description"])

	resp, body = e.post("/backend/token", url.Values{
		"grant_type": {"client_credentials"}, "client_id": {"svc"}, "client_secret": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_client", body["error"])

	resp, body = e.post("/backend/token", url.Values{
		"grant_type": {"password"}, "client_id": {"web"}, "client_secret": {"web-secret"},
		"username": {"ana"}, "password": {"nope"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", body["error"])
}

func TestToken_ClientCredentialsHasNoRefreshToken(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/backend/token", strings.NewReader("grant_type=client_credentials&scope=admin"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("svc", "svc-secret")
	resp, err := e.client().Do(req)
	require.NoError(t, err)
	body := decode(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	_, hasRefresh := body["refresh_token"]
	assert.False(t, hasRefresh)
}

func TestRealmIsolation(t *testing.T) {
	e := newEnv(t)
	backend := e.login("backend")
	resp, body := e.get("/frontend/api/me", backend["access_token"].(string))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", body["error"])
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp, _ = e.post("/frontend/token", url.Values{
		"grant_type": {"refresh_token"}, "client_id": {"web"}, "client_secret": {"web-secret"},
		"refresh_token": {backend["refresh_token"].(string)},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthorize_PKCEFlowOverHTTP(t *testing.T) {
	e := newEnv(t)
	session := e.login("frontend")["access_token"].(string)
	verifier, challenge, err := pkce.NewVerifier()
	require.NoError(t, err)

	q := url.Values{
		"response_type": {"code"}, "client_id": {"spa"}, "redirect_uri": {"https://spa.example/cb"},
		"scope": {"read"}, "state": {"xyz"}, "code_challenge": {challenge}, "code_challenge_method": {"S256"},
	}
	resp, prompt := e.get("/frontend/authorize?"+q.Encode(), session)
	require.Equal(t, http.StatusOK, resp.StatusCode, prompt)
	assert.Equal(t, "CONSENT_PENDING", prompt["phase"])
	assert.Equal(t, "spa", prompt["client_id"])

	q.Set("approve", "true")
	resp, _ = e.get("/frontend/authorize?"+q.Encode(), session)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	form := url.Values{
		"grant_type": {"authorization_code"}, "client_id": {"spa"}, "code": {code},
		"redirect_uri": {"https://spa.example/cb"}, "code_verifier": {verifier},
	}
	resp, tok := e.post("/frontend/token", form)
	require.Equal(t, http.StatusOK, resp.StatusCode, tok)
	assert.NotEmpty(t, tok["access_token"])

	resp, again := e.post("/frontend/token", form)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", again["error"])
	assert.Equal(t, "Authorization code has been revoked", again["hint"])
}

func TestAuthorize_DenyAndMismatch(t *testing.T) {
	e := newEnv(t)
	session := e.login("frontend")["access_token"].(string)

	q := url.Values{
		"response_type": {"code"}, "client_id": {"web"}, "redirect_uri": {"https://web.example/cb"},
		"state": {"s1"}, "approve": {"false"},
	}
	resp, _ := e.get("/frontend/authorize?"+q.Encode(), session)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "The user denied the request", loc.Query().Get("hint"))
	assert.Equal(t, "s1", loc.Query().Get("state"))

	q.Set("redirect_uri", "https://evil.example/cb")
	resp, body := e.get("/frontend/authorize?"+q.Encode(), session)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Equal(t, "invalid_client", body["error"])

	q.Set("redirect_uri", "https://web.example/cb")
	resp, body = e.get("/frontend/authorize?"+q.Encode(), "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "access_denied", body["error"])
}

func TestRevoke_ThenResourceRejects(t *testing.T) {
	e := newEnv(t)
	tok := e.login("backend")
	access := tok["access_token"].(string)

	resp, _ := e.post("/backend/revoke", url.Values{"client_id": {"web"}, "client_secret": {"web-secret"}, "token": {access}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.post("/backend/revoke", url.Values{"client_id": {"web"}, "client_secret": {"web-secret"}, "token": {access}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.get("/backend/api/me", access)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Access token has been revoked", body["hint"])
}

func TestJWKSHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	resp, jwks := e.get("/frontend/.well-known/jwks.json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	keys, ok := jwks["keys"].([]any)
	require.True(t, ok)
	require.Len(t, keys, 1)
	assert.Equal(t, "RSA", keys[0].(map[string]any)["kty"])

	resp, health := e.get("/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "http_requests_total")
}

func TestVisitorBootstrapOnlyInFrontend(t *testing.T) {
	e := newEnv(t)
	form := url.Values{
		"grant_type": {"password"}, "client_id": {"web"}, "client_secret": {"web-secret"},
		"username": {"visitor"}, "password": {"visitor-pass"},
	}
	resp, body := e.post("/frontend/token", form)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	resp, me := e.get("/frontend/api/me", body["access_token"].(string))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "visitor", me["principal_type"])

	resp, _ = e.post("/backend/token", form)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
