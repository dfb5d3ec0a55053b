package pg

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// Requiere TOKENCORE_TEST_PG_DSN apuntando a una base descartable.
func openTestStore(t *testing.T, realm types.Realm) *Store {
	t.Helper()
	dsn := os.Getenv("TOKENCORE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TOKENCORE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, PoolConfig{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = Migrate(ctx, pool)
	require.NoError(t, err)
	return New(pool, realm)
}

func TestPG_PersistCollision(t *testing.T) {
	s := openTestStore(t, types.RealmBackend)
	ctx := context.Background()
	id := uuid.NewString()

	at := &types.AccessToken{ID: id, ClientID: "c1", Principal: types.UserRef("7"), Scopes: []string{"read"}, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.AccessTokens().Persist(ctx, at))
	err := s.AccessTokens().Persist(ctx, &types.AccessToken{ID: id, ClientID: "c2", ExpiresAt: time.Now().Add(time.Hour)})
	require.ErrorIs(t, err, repository.ErrIdentifierCollision)

	got, err := s.AccessTokens().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "c1", got.ClientID)
	require.Equal(t, types.UserRef("7"), got.Principal)
}

func TestPG_RevokeCompareAndSet(t *testing.T) {
	s := openTestStore(t, types.RealmFrontend)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, s.AuthCodes().Persist(ctx, &types.AuthCode{
		ID: id, ClientID: "spa", Principal: types.VisitorRef(uuid.NewString()), ExpiresAt: time.Now().Add(time.Minute),
	}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AuthCodes().Revoke(ctx, id)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins)

	revoked, err := s.AuthCodes().IsRevoked(ctx, uuid.NewString())
	require.NoError(t, err)
	require.True(t, revoked, "unknown codes count as revoked")
}

func TestPG_RealmIsolation(t *testing.T) {
	backend := openTestStore(t, types.RealmBackend)
	frontend := New(backend.pool, types.RealmFrontend)
	ctx := context.Background()
	id := "client-" + uuid.NewString()

	require.NoError(t, backend.Clients().Save(ctx, &types.Client{ID: id, Active: true, GrantTypes: []types.GrantType{types.GrantClientCredentials}}))
	_, err := frontend.Clients().Get(ctx, id)
	require.True(t, repository.IsNotFound(err))

	err = frontend.Clients().Save(ctx, &types.Client{ID: id, Active: true})
	require.True(t, repository.IsConflict(err))

	c, err := backend.Clients().Get(ctx, id)
	require.NoError(t, err)
	require.True(t, c.HasGrant(types.GrantClientCredentials))
}
