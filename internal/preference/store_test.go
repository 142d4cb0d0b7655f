package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/client/internal/storage"
	"tempmail/client/internal/storage/memory"
)

type unavailableKV struct{}

func (unavailableKV) Get(string) (string, error) { return "", storage.ErrUnavailable }
func (unavailableKV) Set(string, string) error   { return storage.ErrUnavailable }
func (unavailableKV) Delete(string) error        { return storage.ErrUnavailable }
func (unavailableKV) Health() error              { return storage.ErrUnavailable }

type stubLister struct {
	domains []string
	err     error
}

func (s stubLister) ListDomains(context.Context) ([]string, error) {
	return s.domains, s.err
}

func TestStore(t *testing.T) {
	t.Run("无偏好时返回兜底域名", func(t *testing.T) {
		store := NewStore(memory.NewStore(), "temp.mail", nil)

		assert.Equal(t, "temp.mail", store.Get())
	})

	t.Run("保存与清除偏好", func(t *testing.T) {
		store := NewStore(memory.NewStore(), "temp.mail", nil)

		require.NoError(t, store.Set(" Example.COM "))
		assert.Equal(t, "example.com", store.Get())

		require.NoError(t, store.Clear())
		assert.Equal(t, "temp.mail", store.Get())
	})

	t.Run("存储不可用时偏好保留在内存", func(t *testing.T) {
		store := NewStore(unavailableKV{}, "temp.mail", nil)

		require.NoError(t, store.Set("example.com"))
		assert.Equal(t, "example.com", store.Get())
		assert.Equal(t, "example.com", store.ValidPreferredOrFallback([]string{"a.test", "example.com"}))

		require.NoError(t, store.Clear())
		assert.Equal(t, "temp.mail", store.Get())
	})

	t.Run("无存储时退化", func(t *testing.T) {
		store := NewStore(nil, "temp.mail", nil)

		require.NoError(t, store.Set("example.com"))
		assert.Equal(t, "temp.mail", store.Get())
	})
}

func TestValidPreferredOrFallback(t *testing.T) {
	store := NewStore(memory.NewStore(), "temp.mail", nil)

	t.Run("无偏好时取列表第一个", func(t *testing.T) {
		assert.Equal(t, "a.test", store.ValidPreferredOrFallback([]string{"a.test", "b.test"}))
	})

	t.Run("偏好在列表中", func(t *testing.T) {
		require.NoError(t, store.Set("b.test"))
		assert.Equal(t, "b.test", store.ValidPreferredOrFallback([]string{"a.test", "b.test"}))
	})

	t.Run("偏好不在列表中", func(t *testing.T) {
		require.NoError(t, store.Set("gone.test"))
		assert.Equal(t, "a.test", store.ValidPreferredOrFallback([]string{"a.test"}))
	})

	t.Run("列表为空", func(t *testing.T) {
		assert.Equal(t, "temp.mail", store.ValidPreferredOrFallback(nil))
	})
}

func TestResolve(t *testing.T) {
	store := NewStore(memory.NewStore(), "temp.mail", nil)
	require.NoError(t, store.Set("b.test"))

	assert.Equal(t, "b.test", store.Resolve(context.Background(), stubLister{domains: []string{"a.test", "b.test"}}))
	assert.Equal(t, "b.test", store.Resolve(context.Background(), stubLister{err: errors.New("offline")}))
	assert.Equal(t, "a.test", store.Resolve(context.Background(), stubLister{domains: []string{"a.test"}}))
}
