// Package cache provee un cliente key/value con TTL y dos backends:
//   - memory (go-cache, in-process, desarrollo/tests o single-instance)
//   - redis (distribuido, para varias réplicas)
//
// Lo usan las sesiones de visitantes del realm frontend y el health check.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl 0 = sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error

	Close() error

	Stats(ctx context.Context) (Stats, error)
}

// Stats contiene estadísticas del cache.
type Stats struct {
	Driver string
	Keys   int64
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string // prefijo para todas las keys
	DefaultTTL time.Duration
}

// ErrNotFound indica que la key no existe.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente de cache según la configuración.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
