// Package crash wraps endpoints to catch panics, tag error replies and report
// failures and slow calls.
package crash

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/USSTM/microservice/internal/logging"
)

const (
	// DoReportEnv forces reporting when set to any value.
	DoReportEnv = "DO_REPORT_ERROR"
	// NoReportEnv disables reporting when set to "1".
	NoReportEnv = "NO_ERROR_REPORTING"
)

type Reporter interface {
	Report(ctx context.Context, title, body string) error
}

type ReporterFunc func(ctx context.Context, title, body string) error

func (f ReporterFunc) Report(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

// LogReporter is the default reporter. It only logs.
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, title, body string) error {
	logging.Error(title, "details", body)
	return nil
}

// ServerInfo names the api served by this process.
type ServerInfo interface {
	CurrentServer() (name, version string)
}

type EC2Detector interface {
	IsEC2Instance(ctx context.Context) bool
}

// Report sends data to the reporter if reporting is enabled. Reporter
// failures are logged and swallowed.
func (h *Handler) Report(ctx context.Context, title string, data map[string]any, caught error, fatal bool) {
	if !h.shouldReport(ctx, data) {
		logging.Debug("Skipping error report", "title", title)
		return
	}

	full := h.reportTitle(title, data, fatal)
	body := reportBody(data, caught)

	h.metrics.ObserveReport(fatal)

	if err := h.reporter.Report(ctx, full, body); err != nil {
		logging.Error("Failed to send error report", "title", full, "error", err)
	}
}

func (h *Handler) shouldReport(ctx context.Context, data map[string]any) bool {
	if _, ok := os.LookupEnv(DoReportEnv); ok {
		return true
	}
	if os.Getenv(NoReportEnv) == "1" {
		return false
	}
	if v, ok := data["is_ec2_instance"].(bool); ok {
		return v
	}
	if h.ec2 != nil {
		return h.ec2.IsEC2Instance(ctx)
	}
	return false
}

func (h *Handler) reportTitle(title string, data map[string]any, fatal bool) string {
	kind := "NON-FATAL ERROR"
	if fatal {
		kind = "FATAL ERROR"
	}

	server := h.serverName()

	resp, ok := data["response"].(map[string]any)
	if !ok {
		fn, _ := data["endpoint"].(string)
		if fn == "" {
			return fmt.Sprintf("%s %s: %s", kind, server, title)
		}
		return fmt.Sprintf("%s %s %s(): %s", kind, server, fn, title)
	}

	parts := []string{kind, server, fmt.Sprint(resp["status"])}
	if code, _ := resp["error_code"].(string); code != "" {
		parts = append(parts, code)
	}
	return strings.Join(parts, " ") + ": " + title
}

func (h *Handler) serverName() string {
	if h.server == nil {
		return "unknown"
	}
	name, version := h.server.CurrentServer()
	if name == "" {
		return "unknown"
	}
	if version == "" {
		return name
	}
	return name + "-" + version
}

func reportBody(data map[string]any, caught error) string {
	var b strings.Builder
	if caught != nil {
		fmt.Fprintf(&b, "error: %s\n\n", caught)
	}
	if trace, ok := data["trace"].(string); ok && trace != "" {
		b.WriteString(trace)
		b.WriteString("\n\n")
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(&b, "%v", data)
		return b.String()
	}
	b.Write(payload)
	return b.String()
}
