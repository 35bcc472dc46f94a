package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return &Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, mr
}

func TestSetGetDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "experiment:active:skill-page:layout", `{"key":"layout-test"}`, time.Minute))

	val, err := client.Get(ctx, "experiment:active:skill-page:layout")
	require.NoError(t, err)
	assert.Equal(t, `{"key":"layout-test"}`, val)

	exists, err := client.Exists(ctx, "experiment:active:skill-page:layout")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Delete(ctx, "experiment:active:skill-page:layout"))

	_, err = client.Get(ctx, "experiment:active:skill-page:layout")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestExpiration(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}
