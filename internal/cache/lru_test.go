package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, time.Minute)

	var got entry
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrMiss)

	require.NoError(t, c.Set(ctx, "a", entry{Name: "a", Count: 1}, 0))
	require.NoError(t, c.Get(ctx, "a", &got))
	assert.Equal(t, entry{Name: "a", Count: 1}, got)

	require.NoError(t, c.Set(ctx, "b", entry{Name: "b"}, 0))
	require.NoError(t, c.Set(ctx, "c", entry{Name: "c"}, 0))
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrMiss, "oldest entry evicted")

	require.NoError(t, c.Delete(ctx, "b"))
	assert.ErrorIs(t, c.Get(ctx, "b", &got), ErrMiss)
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(4, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "a", 1, 0))
	time.Sleep(50 * time.Millisecond)

	var n int
	assert.ErrorIs(t, c.Get(ctx, "a", &n), ErrMiss)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, any) error {
	return errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, any, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) Delete(context.Context, ...string) error { return nil }

func TestLayered_DegradesToLocal(t *testing.T) {
	ctx := context.Background()
	c := NewLayered(NewLRUCache(4, time.Minute), brokenCache{})

	var n int
	assert.ErrorIs(t, c.Get(ctx, "k", &n), ErrMiss)

	require.NoError(t, c.Set(ctx, "k", 7, time.Minute))
	require.NoError(t, c.Get(ctx, "k", &n))
	assert.Equal(t, 7, n)
}

func TestLayered_PopulatesLocalFromShared(t *testing.T) {
	ctx := context.Background()
	local := NewLRUCache(4, time.Minute)
	shared := NewLRUCache(4, time.Minute)
	require.NoError(t, shared.Set(ctx, "k", entry{Name: "shared"}, 0))

	c := NewLayered(local, shared)
	var got entry
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "shared", got.Name)

	var fromLocal entry
	require.NoError(t, local.Get(ctx, "k", &fromLocal))
	assert.Equal(t, "shared", fromLocal.Name)
}
