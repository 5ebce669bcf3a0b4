package models

import "time"

// Issue field names as they appear on the wire and in the store.
const (
	FieldID         = "_id"
	FieldProject    = "project"
	FieldIssueTitle = "issue_title"
	FieldIssueText  = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
	FieldOpen       = "open"
)

// Issue represents a tracked work item scoped to a project.
type Issue struct {
	ID         string    `json:"_id"`
	Project    string    `json:"project"`
	IssueTitle string    `json:"issue_title"`
	IssueText  string    `json:"issue_text"`
	CreatedBy  string    `json:"created_by"`
	AssignedTo string    `json:"assigned_to"`
	StatusText string    `json:"status_text"`
	CreatedOn  time.Time `json:"created_on"`
	UpdatedOn  time.Time `json:"updated_on"`
	Open       bool      `json:"open"`
}

// CreateInput holds the client-supplied fields of a new issue.
type CreateInput struct {
	IssueTitle string
	IssueText  string
	CreatedBy  string
	AssignedTo string
	StatusText string
}

// Missing reports whether any required field is empty.
func (in CreateInput) Missing() bool {
	return in.IssueTitle == "" || in.IssueText == "" || in.CreatedBy == ""
}

// NewIssue builds a record ready for insertion. It is the only place
// defaults and creation timestamps are applied; the store assigns the ID.
func NewIssue(project string, in CreateInput, now time.Time) *Issue {
	now = now.UTC()
	return &Issue{
		Project:    project,
		IssueTitle: in.IssueTitle,
		IssueText:  in.IssueText,
		CreatedBy:  in.CreatedBy,
		AssignedTo: in.AssignedTo,
		StatusText: in.StatusText,
		CreatedOn:  now,
		UpdatedOn:  now,
		Open:       true,
	}
}
