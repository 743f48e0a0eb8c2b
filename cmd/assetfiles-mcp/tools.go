package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/catalog"
	"github.com/marmos91/assetfiles/pkg/fileops"
)

// toolset binds the MCP tools to one managed root and one credential.
type toolset struct {
	ops   *fileops.Operations
	gate  *auth.Gate
	token string
}

func newToolset(ops *fileops.Operations, gate *auth.Gate, token string) *toolset {
	return &toolset{ops: ops, gate: gate, token: token}
}

func (t *toolset) register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the entries of the managed root, newest first"),
	), t.listFiles)

	s.AddTool(mcp.NewTool("get_file",
		mcp.WithDescription("Describe one entry of the managed root"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry name relative to the root")),
	), t.getFile)

	s.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Create or replace a text file in the managed root"),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name relative to the root")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text content of the file")),
	), t.writeFile)

	s.AddTool(mcp.NewTool("rename_file",
		mcp.WithDescription("Rename an entry of the managed root"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current name")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New name")),
	), t.renameFile)

	s.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete an entry of the managed root, recursively for directories"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry name relative to the root")),
	), t.deleteFile)
}

// authorize runs the gate as if the call were an HTTP request with method.
func (t *toolset) authorize(method string) (*mcp.CallToolResult, bool) {
	decision, err := t.gate.Authorize(method, t.token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), false
	}
	if decision.Identity != "" {
		logger.Debug("MCP call authorized for %s", decision.Identity)
	}
	return nil, true
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *toolset) listFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied, ok := t.authorize(http.MethodGet); !ok {
		return denied, nil
	}

	records, err := t.ops.List()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list root: %v", err)), nil
	}
	catalog.SortNewestFirst(records)
	return jsonResult(records)
}

func (t *toolset) getFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied, ok := t.authorize(http.MethodGet); !ok {
		return denied, nil
	}

	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := t.ops.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(record)
}

func (t *toolset) writeFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied, ok := t.authorize(http.MethodPut); !ok {
		return denied, nil
	}

	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := t.ops.CreateOne(fileops.Upload{
		Filename: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(record)
}

func (t *toolset) renameFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied, ok := t.authorize(http.MethodPost); !ok {
		return denied, nil
	}

	from, err := request.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := request.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := t.ops.RenameOne(fileops.Rename{From: from, To: to})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(record)
}

func (t *toolset) deleteFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied, ok := t.authorize(http.MethodDelete); !ok {
		return denied, nil
	}

	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	deleted, err := t.ops.DeleteOne(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %s", deleted)), nil
}
