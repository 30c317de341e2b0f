// Package observability records an append-only audit trail of tool
// executions and reloads.
package observability

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolhost/pkg/tool"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type     string         `json:"event_type"`
	Action   string         `json:"action"` // e.g. "execute:calculator.add", "reload:echo"
	Status   string         `json:"status"` // "success" or "failure"
	Kind     tool.ErrorKind `json:"kind,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditLogger writes one JSON line per event.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
	now    func() time.Time
}

// NewAuditLogger writes audit events to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w),
		now:    time.Now,
	}
}

// OpenAuditLog appends audit events to the file at path.
func OpenAuditLog(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	a := NewAuditLogger(file)
	a.closer = file
	return a, nil
}

// Record emits an audit event.
func (a *AuditLogger) Record(event AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", a.now()).
		Str("event_type", event.Type).
		Str("action", event.Action).
		Str("status", event.Status)

	if event.Kind != "" {
		entry.Str("kind", string(event.Kind))
	}
	if event.Duration > 0 {
		entry.Dur("duration_ms", event.Duration)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Send()
}

// ExecutionFinished records one tool execution.
func (a *AuditLogger) ExecutionFinished(toolName, method string, result tool.Result, duration time.Duration) {
	event := AuditEvent{
		Type:     "tool",
		Action:   "execute:" + toolName + "." + method,
		Status:   status(result.Success),
		Kind:     result.Kind,
		Duration: duration,
	}
	if !result.Success {
		event.Metadata = map[string]any{"error": result.Error}
	}
	a.Record(event)
}

// ToolReloaded records one reload request.
func (a *AuditLogger) ToolReloaded(name string, err error) {
	event := AuditEvent{
		Type:   "tool",
		Action: "reload:" + name,
		Status: status(err == nil),
	}
	if err != nil {
		event.Metadata = map[string]any{"error": err.Error()}
	}
	a.Record(event)
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
