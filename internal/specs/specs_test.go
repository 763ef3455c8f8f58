package specs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDiscover(t *testing.T) {
	t.Run("ignores listed apis and always adds ping", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "orders.yaml"), "swagger: '2.0'")
		writeFile(t, filepath.Join(dir, "users.yaml"), "swagger: '2.0'")

		apis, err := Discover(dir, []string{"users"})
		require.NoError(t, err)

		assert.Equal(t, []string{"orders", "ping"}, Names(apis))
		assert.Equal(t, filepath.Join(dir, "orders.yaml"), apis["orders"])
	})

	t.Run("skips non yaml files and walks subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "README.md"), "# docs")
		writeFile(t, filepath.Join(dir, "orders.json"), "{}")
		writeFile(t, filepath.Join(dir, "v2", "billing.yaml"), "swagger: '2.0'")

		apis, err := Discover(dir, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"billing", "ping"}, Names(apis))
		assert.Equal(t, filepath.Join(dir, "v2", "billing.yaml"), apis["billing"])
	})

	t.Run("ping cannot be shadowed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "ping.yaml"), "not the builtin")

		apis, err := Discover(dir, nil)
		require.NoError(t, err)

		builtin, err := PingPath()
		require.NoError(t, err)
		assert.Equal(t, builtin, apis[PingName])
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := Discover("", nil)
		assert.ErrorIs(t, err, ErrMissingPath)
	})

	t.Run("unreadable path", func(t *testing.T) {
		_, err := Discover(filepath.Join(t.TempDir(), "missing"), nil)
		assert.Error(t, err)
	})

	t.Run("path is a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "orders.yaml")
		writeFile(t, path, "swagger: '2.0'")

		_, err := Discover(path, nil)
		assert.Error(t, err)
	})
}

func TestPingPath(t *testing.T) {
	path, err := PingPath()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, PingSpec(), data)
	assert.Contains(t, string(data), "operationId: ping")
}
