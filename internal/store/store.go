package store

import (
	"context"
	"errors"

	"github.com/joescharf/issuetracker/internal/models"
)

var (
	// ErrNotFound is returned when an id-addressed operation matches nothing.
	ErrNotFound = errors.New("issue not found")

	// ErrInvalidID is returned when a backend cannot parse the given id.
	ErrInvalidID = errors.New("invalid issue id")
)

// Store defines the persistence interface for issues. Find returns issues in
// the backend's natural order.
type Store interface {
	Find(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error)
	Insert(ctx context.Context, issue *models.Issue) (*models.Issue, error)
	UpdateByID(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error)
	DeleteByID(ctx context.Context, id string) (*models.Issue, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
