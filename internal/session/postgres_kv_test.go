package session

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpass/medpass/internal/infra"
	"github.com/medpass/medpass/internal/logging"
)

// Runs only when DATABASE_URL points at a disposable database.
func TestPostgresKVStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool))

	store := NewStore(NewPostgresKV(pool, "test:"+uuid.NewString()), logging.Discard())

	require.True(t, store.Save(ctx, Payload{Token: "abc", UserID: "1", Profile: Profile{"pin_status": "1"}}, "9876543210"))
	got := store.Get(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.Profile.String("pin_status"))

	require.True(t, store.Clear(ctx))
	require.True(t, store.Clear(ctx))
	assert.False(t, store.IsLoggedIn(ctx))
}
