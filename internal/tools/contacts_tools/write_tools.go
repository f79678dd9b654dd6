package contacts_tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/contactsync"
	"github.com/teemow/coachcontacts/internal/instrumentation"
	"github.com/teemow/coachcontacts/internal/server"
	"github.com/teemow/coachcontacts/internal/tools/batch"
	"github.com/teemow/coachcontacts/internal/tools/common"
)

const contactFields = "name (required on add), email, phone, organization, role, notes, " +
	"tags (array or comma-separated string) and source (Dashboard, Manual or Import)"

type toolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

func registerWriteTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	add := func(tool mcp.Tool, operation string, h toolHandler) {
		s.AddTool(tool, common.InstrumentedToolHandler(tool.Name, operation, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return h(ctx, request, sc)
			}))
	}

	add(newTool(ToolAdd, "Add a contact to the coach's contact sheet",
		mcp.WithObject("contact",
			mcp.Required(),
			mcp.Description("Contact fields: "+contactFields),
		),
	), instrumentation.OperationCreate, handleAdd)

	add(newTool(ToolUpdate, "Update fields of an existing contact. Fields that are not given keep their value.",
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Id of the contact"),
		),
		mcp.WithObject("updates",
			mcp.Required(),
			mcp.Description("Fields to change: "+contactFields),
		),
	), instrumentation.OperationUpdate, handleUpdate)

	add(newTool(ToolDelete, "Delete one or more contacts. Unknown ids are reported as deleted.",
		mcp.WithString("contact_ids",
			mcp.Required(),
			mcp.Description("Contact id (string) or array of contact ids to delete"),
		),
	), instrumentation.OperationDelete, handleDelete)

	add(newTool(ToolSync, "Upsert dashboard contacts into the sheet. Records are matched by id, then by email. Nothing is deleted.",
		mcp.WithArray("contacts",
			mcp.Required(),
			mcp.Description("Contacts to upsert, each with the fields: "+contactFields),
		),
	), instrumentation.OperationSync, handleSync)

	add(newTool(ToolImport, "Import the coach's Google Contacts into the sheet with source Import"),
		instrumentation.OperationImport, handleImport)

	add(newTool(ToolInit, "Create the coach's contact sheet if it does not exist and return its URL",
		mcp.WithString("sheet_name",
			mcp.Description("Title for a newly created spreadsheet (default: \"<organization> <coach> Contacts\")"),
		),
		mcp.WithBoolean("seed_examples",
			mcp.Description("Add two example contacts (default: false)"),
		),
	), instrumentation.OperationCreate, handleInit)
}

func handleAdd(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope, err := common.ScopeFromArgs(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	var p contacts.Patch
	if err := common.DecodeArg(args, "contact", &p); err != nil {
		return common.ErrorResult(err), nil
	}

	c, err := sc.Contacts().Add(ctx, scope, p)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	common.SetAffected(ctx, 1)
	return common.JSONResult(c)
}

func handleUpdate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope, err := common.ScopeFromArgs(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	contactID := common.StringArg(args, "contact_id")
	if contactID == "" {
		return common.ErrorResult(contacts.ValidationError("contact_id is required")), nil
	}
	var p contacts.Patch
	if err := common.DecodeArg(args, "updates", &p); err != nil {
		return common.ErrorResult(err), nil
	}

	c, err := sc.Contacts().Update(ctx, scope, contactID, p)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	common.SetAffected(ctx, 1)
	return common.JSONResult(c)
}

func handleDelete(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope, err := common.ScopeFromArgs(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	ids, err := batch.ParseStringOrArray(args["contact_ids"], "contact_ids")
	if err != nil {
		return common.ErrorResult(contacts.ValidationError("%v", err)), nil
	}

	results := batch.ProcessBatch(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := sc.Contacts().Delete(ctx, scope, id); err != nil {
			return "", errors.New(common.ErrorMessage(err))
		}
		return "deleted", nil
	})

	summary := batch.Summarize(results)
	common.SetAffected(ctx, summary.Successful)
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleSync(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope, err := common.ScopeFromArgs(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	var incoming []contacts.Patch
	if err := common.DecodeArg(args, "contacts", &incoming); err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Contacts().Sync(ctx, scope, incoming)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	common.SetAffected(ctx, res.Added+res.Updated)
	return common.JSONResult(res)
}

func handleImport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	scope, err := common.ScopeFromArgs(request.GetArguments())
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Contacts().Import(ctx, scope)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	common.SetAffected(ctx, res.Added+res.Updated)
	return common.JSONResult(res)
}

func handleInit(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope, err := common.ScopeFromArgs(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Contacts().Init(ctx, scope, contactsync.InitOptions{
		SheetName:    common.StringArg(args, "sheet_name"),
		SeedExamples: common.BoolArg(args, "seed_examples", false),
	})
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(res)
}
