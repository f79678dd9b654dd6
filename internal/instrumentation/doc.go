// Package instrumentation provides OpenTelemetry metrics and tracing for coachcontacts.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds (method, route pattern, status)
//
// Google APIs:
//   - google_api_operations_total, google_api_operation_duration_seconds (service, operation, status)
//   - google_api_retries_total: transient failures that were retried once
//
// Sessions:
//   - oauth_token_refresh_total (result)
//   - credential_resolve_total (cached, refreshed, auth_required)
//   - active_sessions
//
// Contacts:
//   - contact_operations_total (operation, status)
//   - contact_rows_skipped_total: rows dropped from listings for lacking an id
//   - contact_sync_records_total (added, updated, unchanged, invalid)
//   - sheet_bindings_total (cached, found, created)
//
// MCP:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds (tool, status)
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: coachcontacts)
//   - METRICS_DETAILED_LABELS, AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSheetBinding(ctx, instrumentation.BindingFound)
package instrumentation
