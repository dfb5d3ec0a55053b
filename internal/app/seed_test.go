package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
	"github.com/dropDatabas3/tokencore/internal/security/password"
	"github.com/dropDatabas3/tokencore/internal/store/memory"
)

func init() {
	seedHashParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestSeedRealm_ClientsAndUsers(t *testing.T) {
	f, err := LoadSeedFile(writeSeed(t, `
realms:
  frontend:
    clients:
      - id: web
        secret: web-secret
        grant_types: [authorization_code, refresh_token]
        redirect_uris: ["https://web.example/cb"]
      - id: spa
        grant_types: [authorization_code]
        redirect_uris: ["https://spa.example/cb"]
        disabled: true
    users:
      - id: u-1
        username: ana
        password: correct horse
`))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	ctx := context.Background()
	st := memory.New(types.RealmFrontend, nil)
	nc, nu, err := SeedRealm(ctx, st, f.Realms["frontend"])
	if err != nil || nc != 2 || nu != 1 {
		t.Fatalf("SeedRealm: %d %d %v", nc, nu, err)
	}

	web, _ := st.Clients().Get(ctx, "web")
	if !web.Confidential || !password.VerifySecret("web-secret", web.SecretSalt, web.SecretDigest) {
		t.Fatalf("web must be confidential with a verifiable secret")
	}
	spa, _ := st.Clients().Get(ctx, "spa")
	if spa.Confidential || spa.Active {
		t.Fatalf("spa must be public and disabled: %+v", spa)
	}
	u, err := st.Users().GetByUsername(ctx, "ana")
	if err != nil || !u.Enabled || !password.Verify("correct horse", u.PasswordHash) {
		t.Fatalf("user not seeded correctly: %+v %v", u, err)
	}
}

func TestSeed_Rejects(t *testing.T) {
	if _, err := LoadSeedFile(writeSeed(t, "realms:\n  admin: {}\n")); err == nil {
		t.Fatalf("unknown realm must fail")
	}
	st := memory.New(types.RealmBackend, nil)
	cases := []RealmSeed{
		{Clients: []ClientSeed{{ID: "bad id"}}},
		{Clients: []ClientSeed{{ID: "c", GrantTypes: []string{"implicit"}}}},
		{Clients: []ClientSeed{{ID: "c", RedirectURIs: []string{"https://x.example/cb#frag"}}}},
		{Users: []UserSeed{{ID: "u", Username: "x"}}},
	}
	for i, c := range cases {
		if _, _, err := SeedRealm(context.Background(), st, c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestPurge_AllRealms(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := &App{Stores: map[types.Realm]repository.Store{
		types.RealmBackend:  memory.New(types.RealmBackend, nil),
		types.RealmFrontend: memory.New(types.RealmFrontend, nil),
	}}
	for _, st := range a.Stores {
		_ = st.AccessTokens().Persist(ctx, &types.AccessToken{ID: "old", ExpiresAt: now.Add(-time.Minute)})
		_ = st.AccessTokens().Persist(ctx, &types.AccessToken{ID: "live", ExpiresAt: now.Add(time.Hour)})
	}
	n, err := a.Purge(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("Purge: %d %v", n, err)
	}
}
