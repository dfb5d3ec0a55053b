// Package pg implementa repository.Store sobre Postgres (pgx/v5).
//
// Un pool puede compartirse entre realms: cada Store filtra por la columna realm.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// PoolConfig configura el pool de conexiones.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect abre un pool y verifica conectividad.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return pool, nil
}

// Store es un repository.Store para un realm.
type Store struct {
	realm    types.Realm
	pool     *pgxpool.Pool
	ownsPool bool
}

var _ repository.Store = (*Store)(nil)

// New crea un Store que comparte el pool. Close no lo cierra.
func New(pool *pgxpool.Pool, realm types.Realm) *Store {
	return &Store{realm: realm, pool: pool}
}

// Open crea un Store dueño de su propio pool.
func Open(ctx context.Context, cfg PoolConfig, realm types.Realm) (*Store, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{realm: realm, pool: pool, ownsPool: true}, nil
}

func (s *Store) Realm() types.Realm { return s.realm }

func (s *Store) Clients() repository.ClientRepository             { return &clientRepo{s} }
func (s *Store) Users() repository.UserRepository                 { return &userRepo{s} }
func (s *Store) AccessTokens() repository.AccessTokenRepository   { return &accessRepo{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return &refreshRepo{s} }
func (s *Store) AuthCodes() repository.AuthCodeRepository         { return &codeRepo{s} }
func (s *Store) Scopes() repository.ScopeRepository               { return &scopeRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// PurgeExpired borra en una transacción las filas expiradas del realm.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, table := range []string{"oauth_refresh_token", "oauth_access_token", "oauth_auth_code"} {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE realm = $1 AND expires_at < $2`, string(s.realm), before)
		if err != nil {
			return 0, fmt.Errorf("pg: purge %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// SeedScopes registra scopes conocidos del realm (idempotente).
func (s *Store) SeedScopes(ctx context.Context, scopes []string) error {
	const query = `INSERT INTO oauth_scope (realm, id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, sc := range scopes {
		if _, err := s.pool.Exec(ctx, query, string(s.realm), sc); err != nil {
			return fmt.Errorf("pg: seed scope %q: %w", sc, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
