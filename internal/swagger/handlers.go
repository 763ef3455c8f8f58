package swagger

import (
	"net/http"
	"os"
	"strings"

	"github.com/USSTM/microservice/internal/logging"
	httpSwagger "github.com/swaggo/http-swagger"
)

// ServeSpecFile serves the raw spec as text/plain so browsers display it.
func ServeSpecFile(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Error("Failed to read spec file", "path", path, "error", err)
			http.Error(w, "Failed to load OpenAPI spec", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(data)
	}
}

// ViewerRedirect sends the browser to an external swagger viewer loading
// specURL.
func ViewerRedirect(viewerURL, specURL string) http.HandlerFunc {
	target := ViewerURL(viewerURL, specURL)
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// ViewerURL is viewerURL with ?url=specURL appended.
func ViewerURL(viewerURL, specURL string) string {
	sep := "?"
	if strings.Contains(viewerURL, "?") {
		sep = "&"
	}
	return viewerURL + sep + "url=" + specURL
}

// UIHandler serves a self-hosted swagger UI for specURL. Mount it under a
// path ending in /*.
func UIHandler(specURL string) http.HandlerFunc {
	return httpSwagger.Handler(
		httpSwagger.URL(specURL),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
	)
}
