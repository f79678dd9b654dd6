package contacts_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/server"
	"github.com/teemow/coachcontacts/internal/tools/common"
)

// Tool names.
const (
	ToolList   = "sheets_contacts_list"
	ToolGet    = "sheets_contacts_get"
	ToolAdd    = "sheets_contacts_add"
	ToolUpdate = "sheets_contacts_update"
	ToolDelete = "sheets_contacts_delete"
	ToolSync   = "sheets_contacts_sync"
	ToolImport = "sheets_contacts_import"
	ToolInit   = "sheets_contacts_init"
)

// ListResult is returned by sheets_contacts_list.
type ListResult struct {
	Contacts      []contacts.Contact `json:"contacts"`
	Total         int                `json:"total"`
	Skipped       int                `json:"skipped,omitempty"`
	SpreadsheetID string             `json:"spreadsheet_id"`
}

// RegisterContactTools registers the contact sheet tools with the MCP server.
func RegisterContactTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc == nil || sc.Contacts() == nil {
		return fmt.Errorf("contact service is not configured")
	}

	registerReadTools(s, sc)
	if !readOnly {
		registerWriteTools(s, sc)
	}
	return nil
}

func scopeOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(common.ArgSessionID,
			mcp.Required(),
			mcp.Description("Session id returned by /oauth/exchange"),
		),
		mcp.WithString(common.ArgCoachID,
			mcp.Required(),
			mcp.Description("Coach whose contact sheet is used"),
		),
	}
}

func newTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, scopeOptions()...)
	return mcp.NewTool(name, append(all, opts...)...)
}

func registerReadTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := newTool(ToolList, "List all contacts in the coach's contact sheet. Creates the sheet on first use.")
	s.AddTool(listTool, common.InstrumentedToolHandler(ToolList, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleList(ctx, request, sc)
		}))

	getTool := newTool(ToolGet, "Get a single contact by id",
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Id of the contact"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler(ToolGet, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGet(ctx, request, sc)
		}))
}

func handleList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	scope, err := common.ScopeFromArgs(request.GetArguments())
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, spreadsheetID, err := sc.Contacts().List(ctx, scope)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	list := res.Contacts
	if list == nil {
		list = []contacts.Contact{}
	}
	return common.JSONResult(ListResult{
		Contacts:      list,
		Total:         len(list),
		Skipped:       res.Skipped,
		SpreadsheetID: spreadsheetID,
	})
}

func handleGet(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope, err := common.ScopeFromArgs(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	contactID := common.StringArg(args, "contact_id")
	if contactID == "" {
		return common.ErrorResult(contacts.ValidationError("contact_id is required")), nil
	}

	c, err := sc.Contacts().Get(ctx, scope, contactID)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(c)
}
