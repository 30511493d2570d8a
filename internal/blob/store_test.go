package blob

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
)

func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put then get returns the bytes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "tenants/a/identity/b", []byte("payload")))

		got, err := s.Get(ctx, "tenants/a/identity/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)

		ok, err := s.Exists(ctx, "tenants/a/identity/b")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("objects are write-once", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k/1", []byte("first")))
		assert.ErrorIs(t, s.Put(ctx, "k/1", []byte("second")), sentinel.ErrConflict)

		got, err := s.Get(ctx, "k/1")
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})

	t.Run("missing object is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		ok, err := s.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("path escaping keys are refused", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Put(ctx, "../escape", []byte("x")))
		assert.Error(t, s.Put(ctx, "/abs", []byte("x")))
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestFSStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := NewFSStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDocumentKey(t *testing.T) {
	tenantID := id.TenantID(uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	docID := id.DocumentID(uuid.MustParse("22222222-2222-2222-2222-222222222222"))
	key := DocumentKey(tenantID, docID)

	assert.Equal(t, "tenants/11111111-1111-1111-1111-111111111111/identity/22222222-2222-2222-2222-222222222222", key)
	assert.True(t, ValidKey(key))
}

func TestValidKey(t *testing.T) {
	for _, key := range []string{"", "/a", "a/../b", "a//b", "a/./b", "a\\b", "a/"} {
		assert.False(t, ValidKey(key), key)
	}
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType([]byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "application/pdf", DetectContentType([]byte("%PDF-1.7\n")))
	assert.Equal(t, "image/jpeg", DetectContentType([]byte("\xff\xd8\xff\xe0")))
	assert.Equal(t, "application/octet-stream", DetectContentType([]byte("hello")))
}
