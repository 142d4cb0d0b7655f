package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/client/internal/storage"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "client.json")

	t.Run("写入后重新打开仍可读取", func(t *testing.T) {
		store, err := NewStore(path, nil)
		require.NoError(t, err)

		require.NoError(t, store.Set(storage.KeyPreferredDomain, "example.com"))
		require.NoError(t, store.Set(storage.KeyTheme, "dark"))

		reopened, err := NewStore(path, nil)
		require.NoError(t, err)
		value, err := reopened.Get(storage.KeyPreferredDomain)
		require.NoError(t, err)
		assert.Equal(t, "example.com", value)
	})

	t.Run("删除后不可读取", func(t *testing.T) {
		store, err := NewStore(path, nil)
		require.NoError(t, err)

		require.NoError(t, store.Delete(storage.KeyPreferredDomain))
		require.NoError(t, store.Delete("never-set"))

		_, err = store.Get(storage.KeyPreferredDomain)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		reopened, err := NewStore(path, nil)
		require.NoError(t, err)
		_, err = reopened.Get(storage.KeyPreferredDomain)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("不留下临时文件", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		for _, entry := range entries {
			assert.NotContains(t, entry.Name(), ".tmp")
		}
	})

	t.Run("损坏的文件从空状态开始", func(t *testing.T) {
		broken := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0600))

		store, err := NewStore(broken, nil)
		require.NoError(t, err)
		_, err = store.Get(storage.KeyTheme)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, store.Health())
	})

	t.Run("空路径", func(t *testing.T) {
		_, err := NewStore("  ", nil)
		assert.Error(t, err)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"普通文件名", "report.pdf", "report.pdf"},
		{"去掉路径", "../../etc/passwd", "passwd"},
		{"去掉 Windows 路径", `C:\Users\me\invoice.txt`, "invoice.txt"},
		{"替换非法字符", `a<b>c?.txt`, "a_b_c_.txt"},
		{"保留名", "CON.txt", "CON_.txt"},
		{"空名称", "", "attachment"},
		{"只有点", "..", "attachment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input, "attachment"))
		})
	}

	t.Run("超长名称截断并保留扩展名", func(t *testing.T) {
		long := make([]byte, 300)
		for i := range long {
			long[i] = 'a'
		}
		got := SanitizeFilename(string(long)+".zip", "attachment")
		assert.Len(t, got, maxFilenameLength)
		assert.Equal(t, ".zip", filepath.Ext(got))
	})
}
