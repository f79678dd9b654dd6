package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrTenant    = "coach_id"
	attrOutcome   = "outcome"
)

// Metrics records the service's counters and histograms.
// The zero value is a valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram
	googleAPIRetriesTotal      metric.Int64Counter

	oauthTokenRefreshTotal metric.Int64Counter
	credentialResolveTotal metric.Int64Counter
	activeSessions         metric.Int64UpDownCounter

	contactOperationsTotal metric.Int64Counter
	contactRowsSkipped     metric.Int64Counter
	contactSyncOutcomes    metric.Int64Counter
	sheetBindingsTotal     metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

var (
	httpBuckets   = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 15.0, 30.0}
	remoteBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}
)

// NewMetrics creates all instruments on the given meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}
	var err error

	counter := func(dst *metric.Int64Counter, name, desc, unit string) {
		if err != nil {
			return
		}
		*dst, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
	}
	histogram := func(dst *metric.Float64Histogram, name, desc string, buckets []float64) {
		if err != nil {
			return
		}
		*dst, err = meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
	}

	counter(&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}")
	histogram(&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds", httpBuckets)

	counter(&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}")
	histogram(&m.googleAPIOperationDuration, "google_api_operation_duration_seconds", "Google API operation duration in seconds", remoteBuckets)
	counter(&m.googleAPIRetriesTotal, "google_api_retries_total", "Google API calls retried after a transient failure", "{retry}")

	counter(&m.oauthTokenRefreshTotal, "oauth_token_refresh_total", "Total number of OAuth token refresh attempts", "{attempt}")
	counter(&m.credentialResolveTotal, "credential_resolve_total", "Session credential lookups by result", "{lookup}")

	counter(&m.contactOperationsTotal, "contact_operations_total", "Contact repository operations by operation and status", "{operation}")
	counter(&m.contactRowsSkipped, "contact_rows_skipped_total", "Sheet rows skipped because they carry no contact id", "{row}")
	counter(&m.contactSyncOutcomes, "contact_sync_records_total", "Records processed by contact sync, by outcome", "{record}")
	counter(&m.sheetBindingsTotal, "sheet_bindings_total", "Sheet locator resolutions by result", "{binding}")

	counter(&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}")
	histogram(&m.toolDuration, "mcp_tool_duration_seconds", "MCP tool execution duration in seconds", remoteBuckets)

	if err != nil {
		return nil, err
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of sessions held by the credential store"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request. path must be a route pattern, never a raw URL.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records one attempt against a Google API.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIRetry counts a retry of a transient Google API failure.
func (m *Metrics) RecordGoogleAPIRetry(ctx context.Context, service, operation string) {
	if m == nil || m.googleAPIRetriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.googleAPIRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
	))
}

// RecordOAuthTokenRefresh records a token refresh attempt ("success" or "failure").
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordCredentialResolve records how a session lookup was answered
// ("cached", "refreshed" or "auth_required").
func (m *Metrics) RecordCredentialResolve(ctx context.Context, result string) {
	if m == nil || m.credentialResolveTotal == nil {
		return // Instrumentation not initialized
	}

	m.credentialResolveTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordContactOperation records a repository operation.
func (m *Metrics) RecordContactOperation(ctx context.Context, operation, status string) {
	if m == nil || m.contactOperationsTotal == nil {
		return // Instrumentation not initialized
	}

	m.contactOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	))
}

// RecordSkippedRows counts sheet rows dropped from a listing.
func (m *Metrics) RecordSkippedRows(ctx context.Context, n int) {
	if m == nil || m.contactRowsSkipped == nil || n <= 0 {
		return
	}

	m.contactRowsSkipped.Add(ctx, int64(n))
}

// RecordSyncResult adds the per-outcome counts of one sync run.
func (m *Metrics) RecordSyncResult(ctx context.Context, added, updated, unchanged, invalid int) {
	if m == nil || m.contactSyncOutcomes == nil {
		return // Instrumentation not initialized
	}

	for outcome, n := range map[string]int{
		"added":     added,
		"updated":   updated,
		"unchanged": unchanged,
		"invalid":   invalid,
	} {
		if n > 0 {
			m.contactSyncOutcomes.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrOutcome, outcome)))
		}
	}
}

// RecordSheetBinding records how the sheet locator answered
// ("cached", "found" or "created").
func (m *Metrics) RecordSheetBinding(ctx context.Context, result string) {
	if m == nil || m.sheetBindingsTotal == nil {
		return // Instrumentation not initialized
	}

	m.sheetBindingsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation.
// The coach id is only attached when detailed labels are enabled.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, tenantID string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && tenantID != "" {
		attrs = append(attrs, attribute.String(attrTenant, tenantID))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return // Instrumentation not initialized
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return // Instrumentation not initialized
	}
	m.activeSessions.Add(ctx, -1)
}
