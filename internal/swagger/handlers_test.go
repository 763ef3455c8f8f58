package swagger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeSpecFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte("swagger: '2.0'\n"), 0644))

	t.Run("serves content as text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ServeSpecFile(path)(rec, httptest.NewRequest(http.MethodGet, "/doc/orders.yaml", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "swagger: '2.0'\n", rec.Body.String())
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ServeSpecFile(path+".gone")(rec, httptest.NewRequest(http.MethodGet, "/doc/orders.yaml", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestViewerRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	ViewerRedirect("http://petstore.swagger.io/", "https://api.example.com/doc/orders.yaml")(
		rec, httptest.NewRequest(http.MethodGet, "/doc/orders", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://petstore.swagger.io/?url=https://api.example.com/doc/orders.yaml", rec.Header().Get("Location"))
}

func TestViewerURL(t *testing.T) {
	assert.Equal(t, "http://viewer.example.com/?theme=dark&url=http://a/b.yaml",
		ViewerURL("http://viewer.example.com/?theme=dark", "http://a/b.yaml"))
}

func TestUIHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	UIHandler("/doc/orders.yaml")(rec, httptest.NewRequest(http.MethodGet, "/doc/ui/orders/index.html", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	// the url is written into a js string, where html/template escapes slashes
	assert.Contains(t, rec.Body.String(), `url: "\/doc\/orders.yaml"`)
}
