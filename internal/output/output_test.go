package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/models"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
}

func TestOpenColor(t *testing.T) {
	assert.Contains(t, OpenColor(true), "open")
	assert.Contains(t, OpenColor(false), "closed")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd\u2026", truncate("abcdefgh", 5))
	assert.Equal(t, "trimmed", truncate("  trimmed  ", 0))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.table([]string{"Project", "State"})
	require.NotNil(t, table)

	table.Append([]string{"apitest", "open"})
	table.Append([]string{"fcc-project", "closed"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "apitest"), "table output should contain project names")
	assert.True(t, strings.Contains(result, "fcc-project"), "table output should contain project names")
}

func TestIssues(t *testing.T) {
	u, out, _ := newTestUI()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	err := u.Issues([]*models.Issue{
		{ID: "01HX", IssueTitle: "Broken build", CreatedBy: "alice", Open: true, UpdatedOn: now},
		{ID: "01HY", IssueTitle: "Typo", CreatedBy: "bob", AssignedTo: "carol", UpdatedOn: now},
	})
	require.NoError(t, err)

	result := out.String()
	assert.Contains(t, result, "Broken build")
	assert.Contains(t, result, "carol")
	assert.Contains(t, result, "closed")
}

func TestJSON(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.JSON(map[string]string{"result": "successfully deleted"}))
	assert.JSONEq(t, `{"result":"successfully deleted"}`, out.String())
}
