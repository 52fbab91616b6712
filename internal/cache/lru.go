package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is a bounded in-process cache. Every entry shares the TTL given at
// construction; the ttl passed to Set is ignored.
type LRUCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 128
	}
	return &LRUCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, key string, dest any) error {
	data, ok := c.lru.Get(key)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *LRUCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	c.lru.Add(key, data)
	return nil
}

func (c *LRUCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return nil
}

// Layered reads through a local cache before a shared one. Errors from the shared layer
// are logged and degrade to the local layer only.
type Layered struct {
	local  Cache
	shared Cache
}

func NewLayered(local, shared Cache) *Layered {
	return &Layered{local: local, shared: shared}
}

func (c *Layered) Get(ctx context.Context, key string, dest any) error {
	if err := c.local.Get(ctx, key, dest); err == nil {
		return nil
	}
	if c.shared == nil {
		return ErrMiss
	}
	err := c.shared.Get(ctx, key, dest)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			slog.WarnContext(ctx, "shared cache unavailable", "key", key, "error", err)
		}
		return ErrMiss
	}
	_ = c.local.Set(ctx, key, dest, 0)
	return nil
}

func (c *Layered) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, value, ttl); err != nil {
			slog.WarnContext(ctx, "shared cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

func (c *Layered) Delete(ctx context.Context, keys ...string) error {
	_ = c.local.Delete(ctx, keys...)
	if c.shared != nil {
		return c.shared.Delete(ctx, keys...)
	}
	return nil
}
