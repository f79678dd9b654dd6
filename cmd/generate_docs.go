package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/server"
	"github.com/teemow/coachcontacts/internal/sheets"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command introspects the registered tools and outputs their documentation
in markdown format, ensuring the documentation is always accurate and in sync
with the actual tool implementations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(outputFile string) error {
	readTools, err := listTools(true)
	if err != nil {
		return err
	}
	allTools, err := listTools(false)
	if err != nil {
		return err
	}

	markdown := generateToolsMarkdown(allTools, readTools)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

// listTools registers the tools against a service without sessions; nothing
// is called, only the definitions are read.
func listTools(readOnly bool) ([]mcp.Tool, error) {
	store := credentials.NewStore(nil)
	svc := contactsync.New(store, contactsync.GoogleBackends(sheets.Config{}))

	serverContext := server.NewServerContext(context.Background(), svc, store, !readOnly)
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := mcpserver.NewMCPServer("coachcontacts", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return nil, err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools, nil
}

func generateToolsMarkdown(tools, readTools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document lists the tools available when running coachcontacts as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	sb.WriteString("## Sessions\n\n")
	sb.WriteString("Every tool takes `session_id`, the id returned by `POST /oauth/exchange`, and `coach_id`. ")
	sb.WriteString("An expired or unknown session yields an `AuthRequired` error; sign in again to get a new session.\n\n")

	readNames := make([]string, 0, len(readTools))
	for _, tool := range readTools {
		readNames = append(readNames, tool.Name)
	}

	var reads, writes []mcp.Tool
	for _, tool := range tools {
		if slices.Contains(readNames, tool.Name) {
			reads = append(reads, tool)
		} else {
			writes = append(writes, tool)
		}
	}

	sb.WriteString("## Read Tools\n\n")
	for _, tool := range reads {
		sb.WriteString(generateToolMarkdown(tool))
		sb.WriteString("\n")
	}

	if len(writes) > 0 {
		sb.WriteString("## Write Tools\n\n")
		sb.WriteString("Only registered when the server runs with `--yolo`.\n\n")
		for _, tool := range writes {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))

	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		// Sort properties for consistent output
		propNames := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			propMap, ok := tool.InputSchema.Properties[name].(map[string]interface{})
			if !ok {
				continue
			}

			requiredStr := "optional"
			if slices.Contains(tool.InputSchema.Required, name) {
				requiredStr = "required"
			}

			sb.WriteString(fmt.Sprintf("- `%s` (%s, %s): ", name, getPropertyType(propMap), requiredStr))
			if desc, ok := propMap["description"].(string); ok {
				sb.WriteString(desc)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func getPropertyType(prop map[string]interface{}) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
