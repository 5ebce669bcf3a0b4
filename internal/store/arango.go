package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"github.com/joescharf/issuetracker/internal/models"
)

// ArangoConfig configures the ArangoDB document store.
type ArangoConfig struct {
	URL        string
	Username   string
	Password   string
	Database   string
	Collection string
}

func (c ArangoConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

// validKey matches the document key syntax ArangoDB accepts.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9_\-:.@()+,=;$!*'%]{1,254}$`)

// ArangoStore implements Store on an ArangoDB document collection. The
// document _key is the issue id.
type ArangoStore struct {
	client     arangodb.Client
	db         arangodb.Database
	cfg        ArangoConfig
	collection string
}

// arangoIssue is the stored document shape.
type arangoIssue struct {
	Key        string    `json:"_key,omitempty"`
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

func toDocument(issue *models.Issue) arangoIssue {
	return arangoIssue{
		Key:        issue.ID,
		Project:    issue.Project,
		IssueTitle: issue.IssueTitle,
		IssueText:  issue.IssueText,
		CreatedBy:  issue.CreatedBy,
		AssignedTo: issue.AssignedTo,
		StatusText: issue.StatusText,
		CreatedOn:  issue.CreatedOn.UTC(),
		UpdatedOn:  issue.UpdatedOn.UTC(),
		Open:       issue.Open,
	}
}

func (d arangoIssue) issue() *models.Issue {
	return &models.Issue{
		ID:         d.Key,
		Project:    d.Project,
		IssueTitle: d.IssueTitle,
		IssueText:  d.IssueText,
		CreatedBy:  d.CreatedBy,
		AssignedTo: d.AssignedTo,
		StatusText: d.StatusText,
		CreatedOn:  d.CreatedOn,
		UpdatedOn:  d.UpdatedOn,
		Open:       d.Open,
	}
}

// NewArangoStore connects to ArangoDB. Call Migrate before use to ensure the
// database and collection exist.
func NewArangoStore(cfg ArangoConfig) (*ArangoStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}
	if cfg.Collection == "" {
		cfg.Collection = "issues"
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	return &ArangoStore{
		client:     arangodb.NewClient(conn),
		cfg:        cfg,
		collection: cfg.Collection,
	}, nil
}

// Migrate ensures the database and the issues collection exist.
func (s *ArangoStore) Migrate(ctx context.Context) error {
	exists, err := s.client.DatabaseExists(ctx, s.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}
	if !exists {
		if _, err := s.client.CreateDatabase(ctx, s.cfg.Database, nil); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created", "database", s.cfg.Database)
	}

	db, err := s.client.GetDatabase(ctx, s.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	s.db = db

	exists, err = db.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", s.collection, err)
	}
	if !exists {
		colType := arangodb.CollectionTypeDocument
		if _, err := db.CreateCollectionV2(ctx, s.collection, &arangodb.CreateCollectionPropertiesV2{Type: &colType}); err != nil {
			return fmt.Errorf("create collection %s: %w", s.collection, err)
		}
		slog.InfoContext(ctx, "arangodb collection created", "collection", s.collection)
	}
	return nil
}

func (s *ArangoStore) Close() error {
	return nil
}

// attribute maps a field name to its document attribute.
func attribute(field string) string {
	if field == models.FieldID {
		return "_key"
	}
	return field
}

func aqlValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatTime(t)
	}
	return v
}

func checkKey(id string) error {
	if !validKey.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// query runs an AQL statement bound to the issues collection and decodes
// every returned document.
func (s *ArangoStore) query(ctx context.Context, aql string, bindVars map[string]any) ([]*models.Issue, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized, call Migrate first")
	}
	bindVars["@col"] = s.collection

	cursor, err := s.db.Query(ctx, aql, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	issues := []*models.Issue{}
	for cursor.HasMore() {
		var doc arangoIssue
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		issues = append(issues, doc.issue())
	}
	return issues, nil
}

// findQuery builds the AQL and bind vars selecting the issues of
// filter.Project that match every condition.
func findQuery(filter models.IssueFilter) (string, map[string]any, error) {
	conditions := []string{"i.project == @project"}
	bindVars := map[string]any{"project": filter.Project}

	for n, fv := range filter.Equals {
		if fv.Field == models.FieldID {
			if err := checkKey(fv.Value.(string)); err != nil {
				return "", nil, err
			}
		}
		name := fmt.Sprintf("v%d", n)
		conditions = append(conditions, fmt.Sprintf("i.%s == @%s", attribute(fv.Field), name))
		bindVars[name] = aqlValue(fv.Value)
	}

	return "FOR i IN @@col FILTER " + strings.Join(conditions, " AND ") + " RETURN i", bindVars, nil
}

// updateQuery builds the AQL merging patch into document id. updated_on is
// always part of the merged fields.
func updateQuery(id string, patch models.IssuePatch) (string, map[string]any) {
	fields := map[string]any{models.FieldUpdatedOn: formatTime(patch.UpdatedOn)}
	for _, fv := range patch.Set {
		fields[attribute(fv.Field)] = aqlValue(fv.Value)
	}
	return "UPDATE { _key: @key } WITH @patch IN @@col OPTIONS { ignoreErrors: true } RETURN NEW",
		map[string]any{"key": id, "patch": fields}
}

func deleteQuery(id string) (string, map[string]any) {
	return "REMOVE { _key: @key } IN @@col OPTIONS { ignoreErrors: true } RETURN OLD",
		map[string]any{"key": id}
}

func (s *ArangoStore) Find(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	aql, bindVars, err := findQuery(filter)
	if err != nil {
		return nil, err
	}
	issues, err := s.query(ctx, aql, bindVars)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	return issues, nil
}

func (s *ArangoStore) Insert(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	issues, err := s.query(ctx, "INSERT @doc INTO @@col RETURN NEW", map[string]any{
		"doc": toDocument(issue),
	})
	if err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	if len(issues) != 1 {
		return nil, fmt.Errorf("insert issue: expected 1 document, got %d", len(issues))
	}
	return issues[0], nil
}

// UpdateByID merges patch into the document and returns the new version.
func (s *ArangoStore) UpdateByID(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := checkKey(id); err != nil {
		return nil, err
	}

	aql, bindVars := updateQuery(id, patch)
	issues, err := s.query(ctx, aql, bindVars)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return issues[0], nil
}

// DeleteByID removes the document and returns its last version.
func (s *ArangoStore) DeleteByID(ctx context.Context, id string) (*models.Issue, error) {
	if err := checkKey(id); err != nil {
		return nil, err
	}

	aql, bindVars := deleteQuery(id)
	issues, err := s.query(ctx, aql, bindVars)
	if err != nil {
		return nil, fmt.Errorf("delete issue: %w", err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return issues[0], nil
}
