package crash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/USSTM/microservice/internal/api"
	"github.com/USSTM/microservice/internal/auth"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/metrics"
	"github.com/USSTM/microservice/internal/middleware"
	"github.com/google/uuid"
)

// DefaultReportCallExceeding is the slow call limit used when none is set.
const DefaultReportCallExceeding = time.Second

type Options struct {
	Reporter       Reporter
	ErrorFormatter api.Formatter
	// ErrorDecorator may edit the json body of every error reply.
	ErrorDecorator      func(body map[string]any)
	Server              ServerInfo
	EC2                 EC2Detector
	Metrics             *metrics.Metrics
	ReportCallExceeding time.Duration
}

type Handler struct {
	reporter  Reporter
	formatter api.Formatter
	decorator func(map[string]any)
	server    ServerInfo
	ec2       EC2Detector
	metrics   *metrics.Metrics
	slowLimit time.Duration

	mu   sync.RWMutex
	slow map[string]time.Duration
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		reporter:  opts.Reporter,
		formatter: opts.ErrorFormatter,
		decorator: opts.ErrorDecorator,
		server:    opts.Server,
		ec2:       opts.EC2,
		metrics:   opts.Metrics,
		slowLimit: opts.ReportCallExceeding,
		slow:      make(map[string]time.Duration),
	}
	if h.reporter == nil {
		h.reporter = LogReporter{}
	}
	if h.formatter == nil {
		h.formatter = api.FormatError
	}
	if h.slowLimit <= 0 {
		h.slowLimit = DefaultReportCallExceeding
	}
	return h
}

// ReportSlow overrides the slow call limit of one endpoint.
func (h *Handler) ReportSlow(endpoint string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slow[endpoint] = d
}

func (h *Handler) slowLimitFor(endpoint string) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if d, ok := h.slow[endpoint]; ok {
		return d
	}
	return h.slowLimit
}

// bufferedWriter holds the reply until the handler returns so that error
// bodies can be tagged before they leave.
type bufferedWriter struct {
	http.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func (bw *bufferedWriter) WriteHeader(code int) {
	if !bw.written {
		bw.status = code
		bw.written = true
	}
}

func (bw *bufferedWriter) Write(b []byte) (int, error) {
	bw.written = true
	return bw.body.Write(b)
}

func (bw *bufferedWriter) reset() {
	bw.status = http.StatusOK
	bw.body.Reset()
}

// Wrap decorates the handler of one endpoint.
func (h *Handler) Wrap(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}

		caught, trace := serve(next, bw, r)
		if caught != nil {
			logging.Error("Endpoint panicked", "endpoint", endpoint, "error", caught)
			bw.reset()
			e := h.formatter(caught)
			if e == nil {
				e = api.FormatError(caught)
			}
			if e.Status == 0 {
				e.Status = http.StatusInternalServerError
			}
			bw.Header().Set("Content-Type", "application/json")
			bw.status = e.Status
			_ = json.NewEncoder(&bw.body).Encode(e)
		}

		status, body, resp := h.tagError(bw.status, bw.body.Bytes())
		if len(body) != bw.body.Len() {
			w.Header().Del("Content-Length")
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)

		elapsed := time.Since(start)
		h.metrics.ObserveCall(endpoint, status, elapsed)

		data := map[string]any{
			"endpoint":  endpoint,
			"server":    h.serverData(r),
			"call_id":   middleware.GetRequestID(r.Context()),
			"call_path": middleware.GetCallPath(r.Context()),
			"time": map[string]any{
				"start":        start.UTC().Format(time.RFC3339Nano),
				"end":          time.Now().UTC().Format(time.RFC3339Nano),
				"microseconds": elapsed.Microseconds(),
			},
			"request":  requestData(r),
			"response": resp,
			"user":     userData(r),
		}
		if trace != "" {
			data["trace"] = trace
		}

		logging.Debug("Call analytics",
			"endpoint", endpoint,
			"status", status,
			"call_id", data["call_id"],
			"microseconds", elapsed.Microseconds())

		ctx := context.WithoutCancel(r.Context())
		if status >= http.StatusInternalServerError {
			title, _ := resp["error_description"].(string)
			if title == "" {
				title = http.StatusText(status)
			}
			h.Report(ctx, title, data, caught, true)
			return
		}

		if limit := h.slowLimitFor(endpoint); elapsed > limit {
			title := fmt.Sprintf("%s took %d ms (limit %d ms)", endpoint, elapsed.Milliseconds(), limit.Milliseconds())
			h.Report(ctx, title, data, nil, false)
		}
	})
}

func serve(next http.Handler, w http.ResponseWriter, r *http.Request) (caught error, trace string) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		if err, ok := rec.(error); ok {
			caught = fmt.Errorf("panic: %w", err)
		} else {
			caught = fmt.Errorf("panic: %v", rec)
		}
		trace = string(debug.Stack())
	}()
	next.ServeHTTP(w, r)
	return nil, ""
}

// tagError makes sure error replies carry an error_id and that the http
// status matches the json status. It returns the reply to send and a summary
// of it for reports.
func (h *Handler) tagError(status int, body []byte) (int, []byte, map[string]any) {
	resp := map[string]any{"status": status, "is_error": status >= http.StatusBadRequest}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return status, body, resp
	}

	isError := status >= http.StatusBadRequest
	if !isError {
		_, hasErr := payload["error"]
		_, hasDesc := payload["error_description"]
		_, hasStatus := payload["status"]
		isError = hasErr && hasDesc && hasStatus
	}
	if !isError {
		return status, body, resp
	}
	resp["is_error"] = true

	if id, _ := payload["error_id"].(string); id == "" {
		payload["error_id"] = uuid.NewString()
	}
	if h.decorator != nil {
		h.decorator(payload)
	}
	if s, ok := payload["status"].(float64); ok && int(s) != status && int(s) >= 100 {
		logging.Warn("Aligning http status with error status", "http_status", status, "error_status", int(s))
		status = int(s)
	}

	tagged, err := json.Marshal(payload)
	if err != nil {
		return status, body, resp
	}
	tagged = append(tagged, '\n')

	resp["status"] = status
	resp["error_code"] = payload["error"]
	resp["error_description"] = payload["error_description"]
	resp["error_id"] = payload["error_id"]
	if msg, ok := payload["user_message"]; ok {
		resp["user_message"] = msg
	}
	return status, tagged, resp
}

// userClaims are copied from the token into reports when set.
var userClaims = []string{"name", "email", "is_expert", "is_admin", "is_support", "is_tester", "language"}

func userData(r *http.Request) map[string]any {
	user := map[string]any{
		"id":      "",
		"is_auth": 0,
		"ip":      remoteIP(r),
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		user["forwarded_ip"] = xff
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		user["user_agent"] = ua
	}

	claims, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		return user
	}
	user["is_auth"] = 1
	user["id"] = claims.Subject
	for _, k := range userClaims {
		if v, ok := claims.Claims[k]; ok && v != nil && v != "" && v != false {
			user[k] = v
		}
	}
	return user
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) serverData(r *http.Request) map[string]any {
	fqdn, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		fqdn, port = r.Host, ""
	}
	server := map[string]any{
		"name": h.serverName(),
		"fqdn": fqdn,
		"port": port,
	}
	if h.server != nil {
		name, version := h.server.CurrentServer()
		server["api_name"] = name
		server["api_version"] = version
	}
	return server
}

func requestData(r *http.Request) map[string]any {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		if k == "Authorization" || k == "Cookie" {
			continue
		}
		headers[k] = r.Header.Get(k)
	}
	return map[string]any{
		"method":  r.Method,
		"path":    r.URL.Path,
		"query":   r.URL.RawQuery,
		"headers": headers,
		"ip":      middleware.GetClientIP(r),
	}
}
