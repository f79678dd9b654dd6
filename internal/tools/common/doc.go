// Package common provides helpers shared by the MCP tool packages: argument
// parsing, error and JSON results, and the instrumented handler wrapper that
// records metrics and audit logs for every tool call.
package common
