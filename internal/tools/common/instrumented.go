package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type affectedKey struct{}

// SetAffected records how many contacts the current tool call touched. It is
// a no-op outside an instrumented handler.
func SetAffected(ctx context.Context, n int) {
	if p, ok := ctx.Value(affectedKey{}).(*int); ok {
		*p = n
	}
}

// InstrumentedToolHandler wraps a tool handler with tracing, metrics and audit
// logging. The coach_id argument is recorded as the tenant.
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandler("sheets_contacts_list", instrumentation.OperationList, sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		coachID := StringArg(request.GetArguments(), ArgCoachID)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, instrumentation.Tenant(coachID))

		affected := 0
		ctx = context.WithValue(ctx, affectedKey{}, &affected)

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithOperation(operation).
			WithTenant(coachID, "")

		result, err := handler(ctx, request)
		duration := time.Since(start)

		outcome := err
		if outcome == nil && result != nil && result.IsError {
			outcome = errors.New(resultText(result))
		}
		invocation.WithAffected(affected).Complete(outcome)
		instrumentation.EndSpan(span, outcome)

		metrics.RecordToolInvocation(ctx, toolName, invocation.Status(), coachID, duration)
		auditLogger.Log(ctx, invocation)

		return result, err
	}
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool returned an error"
}
