package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/output"
)

var (
	issueTitle   string
	issueText    string
	issueBy      string
	issueAssign  string
	issueStatus  string
	issueFilters []string
	issueSets    []string
	issueJSON    bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "List, add, update and delete issues directly against the configured store.",
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List issues of a project",
	Long: `List issues of a project. Every --filter narrows the result by exact match,
for example --filter open=false --filter assigned_to=alice.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context(), args[0])
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Long: `Update an issue. Each --set assigns one field, for example
--set status_text="In QA" --set open=false.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Context(), args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	issueListCmd.Flags().StringArrayVarP(&issueFilters, "filter", "f", nil, "Filter as field=value (repeatable)")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print JSON instead of a table")

	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueText, "text", "", "Issue text (required)")
	issueAddCmd.Flags().StringVar(&issueBy, "by", "", "Reporter (required)")
	issueAddCmd.Flags().StringVar(&issueAssign, "assign", "", "Assignee")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Free-form status text")
	issueAddCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the created issue as JSON")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("text")
	_ = issueAddCmd.MarkFlagRequired("by")

	issueUpdateCmd.Flags().StringArrayVarP(&issueSets, "set", "s", nil, "Field assignment as field=value (repeatable)")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

// parseAssignments turns field=value pairs into a map. The value may be
// empty; a pair without '=' is an error.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q (want field=value)", pair)
		}
		out[key] = value
	}
	return out, nil
}

func issueListRun(ctx context.Context, project string) error {
	filters, err := parseAssignments(issueFilters)
	if err != nil {
		return err
	}

	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	issues, err := svc.List(ctx, project, filters)
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(issues)
	}
	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}
	return ui.Issues(issues)
}

func issueAddRun(ctx context.Context, project string) error {
	in := models.CreateInput{
		IssueTitle: issueTitle,
		IssueText:  issueText,
		CreatedBy:  issueBy,
		AssignedTo: issueAssign,
		StatusText: issueStatus,
	}

	if dryRun {
		ui.DryRunMsg("Would add issue %q to %s", issueTitle, project)
		return nil
	}

	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	issue, err := svc.Create(ctx, project, in)
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(issue)
	}
	ui.Success("Created issue %s: %s", output.Cyan(issue.ID), issue.IssueTitle)
	ui.VerboseLog("Created on %s", issue.CreatedOn.Local().Format(time.RFC3339))
	return nil
}

func issueUpdateRun(ctx context.Context, id string) error {
	fields, err := parseAssignments(issueSets)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s (%d field(s))", id, len(fields))
		return nil
	}

	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	res, err := svc.Update(ctx, id, fields)
	if err != nil {
		return err
	}
	ui.Success("%s: %s", res.Result, output.Cyan(res.ID))
	return nil
}

func issueDeleteRun(ctx context.Context, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete issue %s", id)
		return nil
	}

	svc, err := getService(ctx)
	if err != nil {
		return err
	}

	res, err := svc.Delete(ctx, id)
	if err != nil {
		return err
	}
	ui.Success("%s: %s", res.Result, output.Cyan(res.ID))
	return nil
}
