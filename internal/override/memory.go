package override

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is a process-local Backend used when no redis is configured.
type Memory struct{ c *gocache.Cache }

func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	return b, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, val, ttl)
	return nil
}

func (m *Memory) Persist(_ context.Context, key string) error {
	v, ok := m.c.Get(key)
	if !ok {
		return ErrNotFound
	}
	m.c.Set(key, v, gocache.NoExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if _, ok := m.c.Get(key); !ok {
		return ErrNotFound
	}
	m.c.Delete(key)
	return nil
}
