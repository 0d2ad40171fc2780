package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/models"
)

func newTestTokenStore(t *testing.T) (*FileTokenStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	return NewFileTokenStore(path, zap.NewNop()), path
}

func TestFileTokenStore_ReadAllMissingFile(t *testing.T) {
	store, _ := newTestTokenStore(t)

	records, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFileTokenStore_ReadAllCorruptFile(t *testing.T) {
	store, path := newTestTokenStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	records, err := store.ReadAll(context.Background())
	require.Error(t, err)
	assert.Empty(t, records)
}

func TestFileTokenStore_UpsertAppendsAndReplaces(t *testing.T) {
	store, _ := newTestTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, models.TokenRecord{Brand: "toyota", AccessToken: "a1", RefreshToken: "r1", Expiration: 100}))
	require.NoError(t, store.Upsert(ctx, models.TokenRecord{Brand: "subaru", AccessToken: "a2", RefreshToken: "r2", Expiration: 200}))
	require.NoError(t, store.Upsert(ctx, models.TokenRecord{Brand: "Toyota", AccessToken: "a3", RefreshToken: "r3", Expiration: 300}))

	records, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.TokenRecord{Brand: "toyota", AccessToken: "a3", RefreshToken: "r3", Expiration: 300}, records[0])
	assert.Equal(t, "subaru", records[1].Brand)
}

func TestFileTokenStore_WritesCamelCaseArray(t *testing.T) {
	store, path := newTestTokenStore(t)
	require.NoError(t, store.Upsert(context.Background(), models.TokenRecord{Brand: "toyota", AccessToken: "a", RefreshToken: "r", Expiration: 42}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"brand":"toyota","accessToken":"a","refreshToken":"r","expiration":42}]`, string(data))
}

func TestFileTokenStore_UpsertOnCorruptFileKeepsFile(t *testing.T) {
	store, path := newTestTokenStore(t)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	err := store.Upsert(context.Background(), models.TokenRecord{Brand: "toyota"})
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "garbage", string(data))
}
