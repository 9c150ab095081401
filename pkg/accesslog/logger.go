// Package accesslog emits structured JSON access and audit logs for the
// scoring service. Assessment audit entries give compliance a durable trail
// of which entity was scored, when, and what came out.
package accesslog

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// sensitiveHeaders are masked before logging.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

// AccessEntry is one logged HTTP request.
type AccessEntry struct {
	Timestamp     string            `json:"timestamp"`
	Level         string            `json:"level"`
	Service       string            `json:"service"`
	CorrelationID string            `json:"correlation_id"`
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	ClientIP      string            `json:"client_ip,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	StatusCode    int               `json:"status_code"`
	DurationMs    int64             `json:"duration_ms"`
	Error         string            `json:"error,omitempty"`
}

// AuditEntry records one completed risk assessment.
type AuditEntry struct {
	Timestamp     string  `json:"timestamp"`
	Level         string  `json:"level"`
	Service       string  `json:"service"`
	CorrelationID string  `json:"correlation_id"`
	EntityID      string  `json:"entity_id"`
	EntityType    string  `json:"entity_type"`
	RiskScore     float64 `json:"risk_score"`
	RiskLevel     string  `json:"risk_level"`
	Anomalous     bool    `json:"anomalous,omitempty"`
}

// Logger writes JSON log lines. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	service string
}

// NewLogger creates a logger writing to stdout.
func NewLogger(service string) *Logger {
	return &Logger{out: os.Stdout, service: service}
}

// NewLoggerTo creates a logger writing to an arbitrary sink, for tests.
func NewLoggerTo(service string, out io.Writer) *Logger {
	return &Logger{out: out, service: service}
}

// Access logs a completed HTTP request.
func (l *Logger) Access(r *http.Request, correlationID string, status int, duration time.Duration, errMsg string) {
	entry := AccessEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         "INFO",
		Service:       l.service,
		CorrelationID: correlationID,
		Method:        r.Method,
		Path:          r.URL.Path,
		ClientIP:      clientIP(r),
		UserAgent:     r.UserAgent(),
		Headers:       maskedHeaders(r.Header),
		StatusCode:    status,
		DurationMs:    duration.Milliseconds(),
		Error:         errMsg,
	}
	if status >= 500 {
		entry.Level = "ERROR"
	} else if status >= 400 {
		entry.Level = "WARN"
	}
	l.write(entry)
}

// Audit logs a completed assessment for the compliance trail.
func (l *Logger) Audit(correlationID, entityID, entityType string, riskScore float64, riskLevel string, anomalous bool) {
	l.write(AuditEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         "AUDIT",
		Service:       l.service,
		CorrelationID: correlationID,
		EntityID:      entityID,
		EntityType:    entityType,
		RiskScore:     riskScore,
		RiskLevel:     riskLevel,
		Anomalous:     anomalous,
	})
}

func (l *Logger) write(entry any) {
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(b, '\n'))
}

// MaskHeader returns a logging-safe header value.
func MaskHeader(name, value string) string {
	if sensitiveHeaders[strings.ToLower(name)] {
		return "***"
	}
	return value
}

// maskedHeaders flattens request headers for logging, masking credentials.
func maskedHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[name] = MaskHeader(name, values[0])
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
