package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStorageContract runs a suite of tests to verify that a Storage implementation
// adheres to the defined interface contract.
func RunStorageContract(t *testing.T, store Storage) {
	ctx := context.Background()
	prefix := fmt.Sprintf("contract-%d-", time.Now().UnixNano())

	t.Run("SetMany and Get", func(t *testing.T) {
		err := store.SetMany(ctx, map[string]string{
			prefix + "a": "alpha",
			prefix + "b": `{"json":true}`,
		})
		require.NoError(t, err, "SetMany should not return error")

		v, err := store.Get(ctx, prefix+"a")
		require.NoError(t, err)
		assert.Equal(t, "alpha", v)

		v, err = store.Get(ctx, prefix+"b")
		require.NoError(t, err)
		assert.Equal(t, `{"json":true}`, v)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.SetMany(ctx, map[string]string{prefix + "a": "first"}))
		require.NoError(t, store.SetMany(ctx, map[string]string{prefix + "a": "second"}))

		v, err := store.Get(ctx, prefix+"a")
		require.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("Empty value is a value", func(t *testing.T) {
		require.NoError(t, store.SetMany(ctx, map[string]string{prefix + "empty": ""}))

		v, err := store.Get(ctx, prefix+"empty")
		require.NoError(t, err)
		assert.Equal(t, "", v)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"missing")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("DeleteMany", func(t *testing.T) {
		require.NoError(t, store.SetMany(ctx, map[string]string{
			prefix + "d1": "1",
			prefix + "d2": "2",
		}))

		err := store.DeleteMany(ctx, prefix+"d1", prefix+"d2", prefix+"never-existed")
		require.NoError(t, err, "DeleteMany should ignore missing keys")

		_, err = store.Get(ctx, prefix+"d1")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
		_, err = store.Get(ctx, prefix+"d2")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Keys", func(t *testing.T) {
		require.NoError(t, store.SetMany(ctx, map[string]string{
			prefix + "k-1":    "1",
			prefix + "k-2":    "2",
			"other-" + prefix: "x",
		}))
		defer func() {
			_ = store.DeleteMany(ctx, prefix+"k-1", prefix+"k-2", "other-"+prefix)
		}()

		keys, err := store.Keys(ctx, prefix+"k-")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{prefix + "k-1", prefix + "k-2"}, keys)
	})
}
