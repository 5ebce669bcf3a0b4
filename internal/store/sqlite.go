package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issuetracker/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const issueColumns = `id, project, issue_title, issue_text, created_by, assigned_to, status_text, created_on, updated_on, open`

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Each issue is one row; ids are ULIDs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access and avoids "database is locked" under concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func checkID(id string) error {
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// column maps a field name to its column.
func column(field string) string {
	if field == models.FieldID {
		return "id"
	}
	return field
}

// sqlValue converts a typed field value to its stored representation.
func sqlValue(v any) any {
	switch v := v.(type) {
	case bool:
		return boolToInt(v)
	case time.Time:
		return formatTime(v)
	default:
		return v
	}
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var createdOn, updatedOn string
	if err := row.Scan(&issue.ID, &issue.Project, &issue.IssueTitle, &issue.IssueText, &issue.CreatedBy,
		&issue.AssignedTo, &issue.StatusText, &createdOn, &updatedOn, &issue.Open); err != nil {
		return nil, err
	}

	var err error
	if issue.CreatedOn, err = time.Parse(time.RFC3339Nano, createdOn); err != nil {
		return nil, fmt.Errorf("parse created_on: %w", err)
	}
	if issue.UpdatedOn, err = time.Parse(time.RFC3339Nano, updatedOn); err != nil {
		return nil, fmt.Errorf("parse updated_on: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) Find(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	conditions := []string{"project = ?"}
	args := []any{filter.Project}

	for _, fv := range filter.Equals {
		if fv.Field == models.FieldID {
			if err := checkID(fv.Value.(string)); err != nil {
				return nil, err
			}
		}
		conditions = append(conditions, column(fv.Field)+" = ?")
		args = append(args, sqlValue(fv.Value))
	}

	query := "SELECT " + issueColumns + " FROM issues WHERE " + strings.Join(conditions, " AND ")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	issues := []*models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	stored := *issue
	if stored.ID == "" {
		stored.ID = newULID()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Project, stored.IssueTitle, stored.IssueText, stored.CreatedBy,
		stored.AssignedTo, stored.StatusText, formatTime(stored.CreatedOn), formatTime(stored.UpdatedOn),
		boolToInt(stored.Open),
	)
	if err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	return &stored, nil
}

// UpdateByID applies patch to the issue and returns the updated record.
func (s *SQLiteStore) UpdateByID(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(patch.Set)+1)
	args := make([]any, 0, len(patch.Set)+2)
	for _, fv := range patch.Set {
		sets = append(sets, column(fv.Field)+" = ?")
		args = append(args, sqlValue(fv.Value))
	}
	sets = append(sets, "updated_on = ?")
	args = append(args, formatTime(patch.UpdatedOn), id)

	query := "UPDATE issues SET " + strings.Join(sets, ", ") + " WHERE id = ? RETURNING " + issueColumns
	issue, err := scanIssue(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	return issue, nil
}

// DeleteByID removes the issue and returns the deleted record.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) (*models.Issue, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	issue, err := scanIssue(s.db.QueryRowContext(ctx, "DELETE FROM issues WHERE id = ? RETURNING "+issueColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("delete issue: %w", err)
	}
	return issue, nil
}
