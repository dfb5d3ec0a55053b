package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// ClientRepository resuelve y persiste clients de un realm.
type ClientRepository interface {
	// Get obtiene un client por client_id. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*types.Client, error)

	// Save crea o actualiza un client. Retorna ErrConflict si intenta cambiar el realm.
	Save(ctx context.Context, c *types.Client) error

	// MarkUsed actualiza last_used_at. Sólo se llama tras una emisión exitosa.
	MarkUsed(ctx context.Context, clientID string, at time.Time) error
}

// UserRepository resuelve usuarios registrados de un realm.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*types.User, error)
	GetByID(ctx context.Context, id string) (*types.User, error)
	// Save crea o actualiza un usuario (seed/CLI).
	Save(ctx context.Context, u *types.User) error
}

// AccessTokenRepository persiste access tokens por jti.
type AccessTokenRepository interface {
	Persist(ctx context.Context, t *types.AccessToken) error
	Get(ctx context.Context, id string) (*types.AccessToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
	// IsRevoked devuelve true también cuando el jti no existe.
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// RefreshTokenRepository persiste refresh tokens por identificador.
type RefreshTokenRepository interface {
	Persist(ctx context.Context, t *types.RefreshToken) error
	Get(ctx context.Context, id string) (*types.RefreshToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// AuthCodeRepository persiste authorization codes.
type AuthCodeRepository interface {
	Persist(ctx context.Context, c *types.AuthCode) error
	Get(ctx context.Context, id string) (*types.AuthCode, error)
	Revoke(ctx context.Context, id string) (bool, error)
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// ScopeRepository resuelve scopes conocidos del realm.
type ScopeRepository interface {
	// Get retorna ErrNotFound para scopes desconocidos.
	Get(ctx context.Context, id string) (types.Scope, error)
}

// Store agrupa los repositorios de un realm.
type Store interface {
	Realm() types.Realm
	Clients() ClientRepository
	Users() UserRepository
	AccessTokens() AccessTokenRepository
	RefreshTokens() RefreshTokenRepository
	AuthCodes() AuthCodeRepository
	Scopes() ScopeRepository

	// PurgeExpired borra tokens y codes expirados antes de before. Retorna filas borradas.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
