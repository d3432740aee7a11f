package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketRoundTrip(t *testing.T) {
	ctx := context.Background()
	local, err := OpenLocal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	for name, b := range map[string]*Bucket{"memory": OpenMemory(), "local": local} {
		t.Run(name, func(t *testing.T) {
			loc, err := b.Put(ctx, []byte("ciphertext"))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(loc, KeyPrefix))

			got, err := b.Get(ctx, loc)
			require.NoError(t, err)
			assert.Equal(t, []byte("ciphertext"), got)
		})
	}
}

func TestBucketLocationsAreFresh(t *testing.T) {
	ctx := context.Background()
	b := OpenMemory()
	defer b.Close()

	first, err := b.Put(ctx, []byte("same"))
	require.NoError(t, err)
	second, err := b.Put(ctx, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBucketGetMissing(t *testing.T) {
	b := OpenMemory()
	defer b.Close()

	_, err := b.Get(context.Background(), KeyPrefix+"missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBucketDelete(t *testing.T) {
	b := OpenMemory()
	defer b.Close()
	ctx := context.Background()

	loc, err := b.Put(ctx, []byte("ciphertext"))
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, loc))

	_, err = b.Get(ctx, loc)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, b.Delete(ctx, loc), "deleting a missing blob is not an error")
}
