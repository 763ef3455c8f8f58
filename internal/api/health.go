package api

import (
	"net/http"

	"github.com/USSTM/microservice/internal/middleware"
)

const PingOperation = "ping"

// Ping replies to the builtin health check with an empty json object.
func Ping(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	logger.Debug("Replying ping:ok")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
