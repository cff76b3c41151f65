package paramstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/regtune/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Cache

	cfg.Path = filepath.Join(t.TempDir(), "best_params.json")

	store, closeFn, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	assert.NoError(t, closeFn())

	cfg.Backend = "memory"
	store, _, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	mr := miniredis.RunT(t)
	cfg.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()

	store, closeFn, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	assert.NoError(t, closeFn())

	cfg.Backend = "s3"
	_, closeFn, err = Open(ctx, cfg)
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(seeded())

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	delete(snap.Families, "randomforest")

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, again.Families, 2)
}
