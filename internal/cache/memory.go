package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre patrickmn/go-cache.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cliente en memoria. defaultTTL 0 = sin expiración por defecto.
func NewMemory(prefix string, defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(defaultTTL, time.Minute),
	}
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(prefixed(m.prefix, key), value, ttl)
	return nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(prefixed(m.prefix, key))
	return nil
}

func (m *memoryClient) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(prefixed(m.prefix, key))
	return ok, nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}

func (m *memoryClient) Stats(context.Context) (Stats, error) {
	return Stats{Driver: "memory", Keys: int64(m.c.ItemCount())}, nil
}
