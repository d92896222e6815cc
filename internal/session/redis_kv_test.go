package session

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpass/medpass/internal/logging"
)

func TestRedisKVStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	kv := NewRedisKV(client, "medpass:session:")
	store := NewStore(kv, logging.Discard())

	require.True(t, store.Save(ctx, Payload{Token: "abc", UserID: "1", Balance: "10"}, "9876543210"))

	raw, err := mr.Get("medpass:session:userToken")
	require.NoError(t, err)
	assert.Equal(t, "abc", raw)

	got := store.Get(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "10", got.Balance)
	assert.True(t, store.IsLoggedIn(ctx))

	require.True(t, store.Clear(ctx))
	assert.False(t, mr.Exists("medpass:session:userToken"))
	assert.Equal(t, "", store.Get(ctx).Token)
}

func TestRedisKVMissingKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	values, err := NewRedisKV(client, "ns:").Get(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Empty(t, values)
}
