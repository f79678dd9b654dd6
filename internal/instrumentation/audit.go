package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation is one audited MCP tool call.
//
// CoachEmail is PII. LogAttrs only emits its domain; LogAuditAttrs emits it in full.
type ToolInvocation struct {
	Tool       string
	TenantID   string
	CoachEmail string
	Operation  string

	// Affected is the number of contacts the call touched, when known.
	Affected int

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string

	now func() time.Time
}

// NewToolInvocation starts timing a tool call.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now(), now: time.Now}
}

// WithTenant sets the coach the call operates on.
func (ti *ToolInvocation) WithTenant(tenantID, email string) *ToolInvocation {
	ti.TenantID = tenantID
	ti.CoachEmail = email
	return ti
}

// WithOperation sets the repository operation the tool maps to.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithAffected records how many contacts the call touched.
func (ti *ToolInvocation) WithAffected(n int) *ToolInvocation {
	ti.Affected = n
	return ti
}

// WithSpanContext copies trace and span ids from the span in ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Complete stops the timer and records the outcome.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	now := time.Now
	if ti.now != nil {
		now = ti.now
	}
	ti.Duration = now().Sub(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) baseAttrs(user slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		user,
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.TenantID != "" {
		attrs = append(attrs, slog.String("coach_id", ti.TenantID))
	}
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.Affected > 0 {
		attrs = append(attrs, slog.Int("affected", ti.Affected))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// LogAttrs returns attributes safe for general operational logs.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	return ti.baseAttrs(slog.String("user_domain", ExtractUserDomain(ti.CoachEmail)))
}

// LogAuditAttrs returns attributes including the full coach email.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := ti.baseAttrs(slog.String("user", ti.CoachEmail))
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	return attrs
}

// AuditLogger writes one structured record per tool invocation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger means slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes the invocation at Info on success and Warn on failure.
func (al *AuditLogger) Log(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ti.LogAttrs()
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	}

	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
