package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/USSTM/microservice/internal/logging"
	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	callPathKey  contextKey = "callPath"
	loggerKey    contextKey = "logger"
)

// Headers propagated between microservices so that every call made while
// serving one client request shares the same call id.
const (
	CallIDHeader   = "X-Call-Id"
	CallPathHeader = "X-Call-Path"
)

// middleware adds call ID, call path, and IP address to context
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// reuse the caller's id when another microservice forwarded one
		requestID := r.Header.Get(CallIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx = context.WithValue(ctx, requestIDKey, requestID)

		callPath := r.Header.Get(CallPathHeader)
		ctx = context.WithValue(ctx, callPathKey, callPath)

		// client IP
		clientIP := GetClientIP(r)

		// Create logger with request context
		logger := logging.With(
			"call_id", requestID,
			"client_ip", clientIP,
		)
		ctx = context.WithValue(ctx, loggerKey, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetLoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	// Fallback to default logger if not found
	return slog.Default()
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetCallPath(ctx context.Context) string {
	if callPath, ok := ctx.Value(callPathKey).(string); ok {
		return callPath
	}
	return ""
}

// attempt to get client IP
func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header for proxied requests
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// take the first one
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to remote address
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
