package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/service"
	"github.com/joescharf/issuetracker/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestServer creates a Server backed by a temporary SQLite store.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	srv := NewServer(service.NewIssueService(s), "test")
	require.NotNil(t, srv)
	return srv
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedIssue(t *testing.T, srv *Server, project, title, by string) *models.Issue {
	t.Helper()
	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{
		"project":     project,
		"issue_title": title,
		"issue_text":  "text",
		"created_by":  by,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	return &issue
}

// ---------------------------------------------------------------------------
// Tests: issues_create
// ---------------------------------------------------------------------------

func TestHandleCreateIssue(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{
		"project":     "apitest",
		"issue_title": "Title",
		"issue_text":  "text",
		"created_by":  "mcp",
		"assigned_to": "Chai",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, "apitest", issue.Project)
	assert.Equal(t, "Chai", issue.AssignedTo)
	assert.True(t, issue.Open)
}

func TestHandleCreateIssue_MissingFields(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{
		"project":     "apitest",
		"issue_title": "Title",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"required field(s) missing"}`, resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: issues_list
// ---------------------------------------------------------------------------

func TestHandleListIssues(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	seedIssue(t, srv, "apitest", "one", "alice")
	seedIssue(t, srv, "apitest", "two", "bob")
	seedIssue(t, srv, "other", "three", "alice")

	result, err := srv.handleListIssues(ctx, callToolReq("issues_list", map[string]any{"project": "apitest"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var issues []*models.Issue
	resultJSON(t, result, &issues)
	assert.Len(t, issues, 2)

	result, err = srv.handleListIssues(ctx, callToolReq("issues_list", map[string]any{
		"project":    "apitest",
		"created_by": "alice",
		"open":       true,
	}))
	require.NoError(t, err)
	resultJSON(t, result, &issues)
	require.Len(t, issues, 1)
	assert.Equal(t, "one", issues[0].IssueTitle)
}

func TestHandleListIssues_Errors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListIssues(ctx, callToolReq("issues_list", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "project")

	result, err = srv.handleListIssues(ctx, callToolReq("issues_list", map[string]any{"project": "apitest", "open": "maybe"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"could not retrieve issues"}`, resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: issues_update
// ---------------------------------------------------------------------------

func TestHandleUpdateIssue(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	issue := seedIssue(t, srv, "apitest", "Title", "alice")

	result, err := srv.handleUpdateIssue(ctx, callToolReq("issues_update", map[string]any{
		"_id":  issue.ID,
		"open": false,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"result":"successfully updated","_id":"`+issue.ID+`"}`, resultText(t, result))

	result, err = srv.handleListIssues(ctx, callToolReq("issues_list", map[string]any{"project": "apitest", "open": "false"}))
	require.NoError(t, err)
	var issues []*models.Issue
	resultJSON(t, result, &issues)
	require.Len(t, issues, 1)
	assert.Equal(t, issue.ID, issues[0].ID)
}

func TestHandleUpdateIssue_Errors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing id", map[string]any{"issue_title": "x"}, `{"error":"missing _id"}`},
		{"no fields", map[string]any{"_id": "abc"}, `{"error":"no update field(s) sent","_id":"abc"}`},
		{"invalid id", map[string]any{"_id": "invalid _id", "issue_title": "x"}, `{"error":"could not update","_id":"invalid _id"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleUpdateIssue(ctx, callToolReq("issues_update", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.JSONEq(t, tt.want, resultText(t, result))
		})
	}
}

// ---------------------------------------------------------------------------
// Tests: issues_delete
// ---------------------------------------------------------------------------

func TestHandleDeleteIssue(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	issue := seedIssue(t, srv, "apitest", "Title", "alice")

	result, err := srv.handleDeleteIssue(ctx, callToolReq("issues_delete", map[string]any{"_id": issue.ID}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"result":"successfully deleted","_id":"`+issue.ID+`"}`, resultText(t, result))

	result, err = srv.handleDeleteIssue(ctx, callToolReq("issues_delete", map[string]any{"_id": issue.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"could not delete","_id":"`+issue.ID+`"}`, resultText(t, result))

	result, err = srv.handleDeleteIssue(ctx, callToolReq("issues_delete", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"missing _id"}`, resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: Integration -- verify all tools are registered via HandleMessage
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{"issues_list", "issues_create", "issues_update", "issues_delete"} {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}

func TestStringArgs(t *testing.T) {
	req := callToolReq("issues_update", map[string]any{
		"open":        false,
		"issue_title": "x",
		"project":     "ignored",
		"assigned_to": map[string]any{},
	})
	got := stringArgs(req, models.MutableFields)
	assert.Equal(t, map[string]string{"open": "false", "issue_title": "x"}, got)
}
