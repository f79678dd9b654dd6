// Package cmd implements the command-line interface for coachcontacts.
//
// This package provides the following commands:
//   - serve: Start the HTTP service and the MCP server (default)
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Configuration comes from flags, then environment variables, then a .env
// file in the working directory.
package cmd
