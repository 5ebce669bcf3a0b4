package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/issuetracker/internal/logger"
	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/store"
)

// User-facing messages. They are part of the response contract.
const (
	MsgRetrieveFailed = "could not retrieve issues"
	MsgRequiredFields = "required field(s) missing"
	MsgCreateFailed   = "could not create issue"
	MsgMissingID      = "missing _id"
	MsgNoUpdateFields = "no update field(s) sent"
	MsgUpdateFailed   = "could not update"
	MsgDeleteFailed   = "could not delete"

	ResultUpdated = "successfully updated"
	ResultDeleted = "successfully deleted"
)

// Error is a failure reported to the client in the response body. ID is
// echoed back when the request carried one. Err is the underlying cause and
// is only logged.
type Error struct {
	Message string
	ID      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the status-only reply to a successful update or delete.
type Result struct {
	Result string `json:"result"`
	ID     string `json:"_id"`
}

// IssueService implements the list/create/update/delete contract on top of
// a Store. It keeps no state between calls.
type IssueService struct {
	store store.Store
	now   func() time.Time
}

// Option configures an IssueService.
type Option func(*IssueService)

// WithClock replaces the time source used for created_on/updated_on.
func WithClock(now func() time.Time) Option {
	return func(s *IssueService) { s.now = now }
}

// NewIssueService creates a service backed by s.
func NewIssueService(s store.Store, opts ...Option) *IssueService {
	svc := &IssueService{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// List returns the issues of project matching every filter, in store order.
func (s *IssueService) List(ctx context.Context, project string, filters map[string]string) ([]*models.Issue, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "service", Project: project})
	if project == "" {
		return nil, &Error{Message: MsgRetrieveFailed, Err: fmt.Errorf("project is required")}
	}

	filter, err := models.ParseFilter(project, filters)
	if err != nil {
		slog.WarnContext(ctx, "list issues: bad filter", "error", err)
		return nil, &Error{Message: MsgRetrieveFailed, Err: err}
	}

	issues, err := s.store.Find(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "list issues failed", "error", err)
		return nil, &Error{Message: MsgRetrieveFailed, Err: err}
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return issues, nil
}

// Create validates in, builds the record and stores it.
func (s *IssueService) Create(ctx context.Context, project string, in models.CreateInput) (*models.Issue, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "service", Project: project})
	if project == "" || in.Missing() {
		return nil, &Error{Message: MsgRequiredFields}
	}

	stored, err := s.store.Insert(ctx, models.NewIssue(project, in, s.now()))
	if err != nil {
		slog.ErrorContext(ctx, "create issue failed", "error", err)
		return nil, &Error{Message: MsgCreateFailed, Err: err}
	}

	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{IssueID: stored.ID}), "issue created")
	return stored, nil
}

// Update applies the mutable fields in fields to issue id. The updated
// record is not returned, only a status.
func (s *IssueService) Update(ctx context.Context, id string, fields map[string]string) (*Result, error) {
	if id == "" {
		return nil, &Error{Message: MsgMissingID}
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "service", IssueID: id})

	if !models.HasUpdateFields(fields) {
		return nil, &Error{Message: MsgNoUpdateFields, ID: id}
	}

	patch, err := models.ParsePatch(fields, s.now())
	if err != nil {
		slog.WarnContext(ctx, "update issue: bad value", "error", err)
		return nil, &Error{Message: MsgUpdateFailed, ID: id, Err: err}
	}

	if _, err := s.store.UpdateByID(ctx, id, patch); err != nil {
		slog.WarnContext(ctx, "update issue failed", "error", err)
		return nil, &Error{Message: MsgUpdateFailed, ID: id, Err: err}
	}

	slog.InfoContext(ctx, "issue updated", "fields", len(patch.Set))
	return &Result{Result: ResultUpdated, ID: id}, nil
}

// Delete removes issue id.
func (s *IssueService) Delete(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, &Error{Message: MsgMissingID}
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "service", IssueID: id})

	if _, err := s.store.DeleteByID(ctx, id); err != nil {
		slog.WarnContext(ctx, "delete issue failed", "error", err)
		return nil, &Error{Message: MsgDeleteFailed, ID: id, Err: err}
	}

	slog.InfoContext(ctx, "issue deleted")
	return &Result{Result: ResultDeleted, ID: id}, nil
}
