package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/service"
)

// Server exposes the issue service as MCP tools.
type Server struct {
	issues  *service.IssueService
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *service.IssueService, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{issues: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issuetracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// issues_list
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List the issues of a project. Every other argument is an exact-match filter. Returns a JSON array of issues."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
	}
	for _, field := range models.FilterableFields {
		opts = append(opts, mcp.WithString(field, mcp.Description(filterDescription(field))))
	}
	return mcp.NewTool("issues_list", opts...), s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	issues, err := s.issues.List(ctx, project, stringArgs(request, models.FilterableFields))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(issues)
}

// issues_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_create",
		mcp.WithDescription("Create an issue in a project. Returns the stored issue as JSON, including its _id."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldIssueTitle, mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString(models.FieldIssueText, mcp.Required(), mcp.Description("Issue text")),
		mcp.WithString(models.FieldCreatedBy, mcp.Required(), mcp.Description("Reporter")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("Assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("Free-form status")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issue, err := s.issues.Create(ctx, request.GetString("project", ""), models.CreateInput{
		IssueTitle: request.GetString(models.FieldIssueTitle, ""),
		IssueText:  request.GetString(models.FieldIssueText, ""),
		CreatedBy:  request.GetString(models.FieldCreatedBy, ""),
		AssignedTo: request.GetString(models.FieldAssignedTo, ""),
		StatusText: request.GetString(models.FieldStatusText, ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(issue)
}

// issues_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Update an issue by _id. Provide at least one field; empty values are ignored. Set open to false to close the issue."),
		mcp.WithString(models.FieldID, mcp.Required(), mcp.Description("Issue id")),
	}
	for _, field := range models.MutableFields {
		opts = append(opts, mcp.WithString(field, mcp.Description("New "+field)))
	}
	return mcp.NewTool("issues_update", opts...), s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.issues.Update(ctx, request.GetString(models.FieldID, ""), stringArgs(request, models.MutableFields))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

// issues_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_delete",
		mcp.WithDescription("Delete an issue by _id."),
		mcp.WithString(models.FieldID, mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.issues.Delete(ctx, request.GetString(models.FieldID, ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func filterDescription(field string) string {
	switch field {
	case models.FieldOpen:
		return "Filter by open state: true or false"
	case models.FieldCreatedOn, models.FieldUpdatedOn:
		return "Filter by exact RFC3339 timestamp"
	default:
		return "Filter by exact " + field
	}
}

// stringArgs collects the scalar arguments named in fields as strings, so
// that clients may send open as a boolean.
func stringArgs(request mcp.CallToolRequest, fields []string) map[string]string {
	args := request.GetArguments()
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		switch v := args[field].(type) {
		case string:
			out[field] = v
		case bool:
			out[field] = strconv.FormatBool(v)
		case float64:
			out[field] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return out
}

// toolError renders a service error the same way the REST API does.
func toolError(err error) *mcp.CallToolResult {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		return mcp.NewToolResultError(err.Error())
	}
	body := map[string]string{"error": svcErr.Message}
	if svcErr.ID != "" {
		body["_id"] = svcErr.ID
	}
	data, _ := json.Marshal(body)
	return mcp.NewToolResultError(string(data))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
