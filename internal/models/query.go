package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidValue is returned when a filter or update value cannot be
// converted to the type of its field.
var ErrInvalidValue = errors.New("invalid field value")

// FilterableFields lists the fields a list query may match on, in the order
// conditions are built. The project is bound separately and is not listed.
var FilterableFields = []string{
	FieldID,
	FieldIssueTitle,
	FieldIssueText,
	FieldCreatedBy,
	FieldAssignedTo,
	FieldStatusText,
	FieldOpen,
	FieldCreatedOn,
	FieldUpdatedOn,
}

// MutableFields lists the fields an update may change.
var MutableFields = []string{
	FieldIssueTitle,
	FieldIssueText,
	FieldCreatedBy,
	FieldAssignedTo,
	FieldStatusText,
	FieldOpen,
}

// FieldValue is a typed value bound to a field name. Value is a string, a
// bool (open) or a time.Time (created_on, updated_on).
type FieldValue struct {
	Field string
	Value any
}

// IssueFilter selects issues of one project whose fields equal every
// condition in Equals.
type IssueFilter struct {
	Project string
	Equals  []FieldValue
}

// ParseFilter builds a filter from raw query values. Keys outside
// FilterableFields are ignored.
func ParseFilter(project string, values map[string]string) (IssueFilter, error) {
	f := IssueFilter{Project: project}
	for _, field := range FilterableFields {
		raw, ok := values[field]
		if !ok {
			continue
		}
		v, err := convert(field, raw)
		if err != nil {
			return IssueFilter{}, err
		}
		f.Equals = append(f.Equals, FieldValue{Field: field, Value: v})
	}
	return f, nil
}

// IssuePatch is a partial update. UpdatedOn is always written.
type IssuePatch struct {
	Set       []FieldValue
	UpdatedOn time.Time
}

// HasUpdateFields reports whether values carries at least one mutable field
// with a non-empty value.
func HasUpdateFields(values map[string]string) bool {
	for _, field := range MutableFields {
		if values[field] != "" {
			return true
		}
	}
	return false
}

// ParsePatch builds a patch from raw values. Keys outside MutableFields and
// empty values are skipped.
func ParsePatch(values map[string]string, now time.Time) (IssuePatch, error) {
	p := IssuePatch{UpdatedOn: now.UTC()}
	for _, field := range MutableFields {
		raw := values[field]
		if raw == "" {
			continue
		}
		v, err := convert(field, raw)
		if err != nil {
			return IssuePatch{}, err
		}
		p.Set = append(p.Set, FieldValue{Field: field, Value: v})
	}
	return p, nil
}

// Apply copies the patch onto issue. Stores without a native partial update
// use it to compute the new record.
func (p IssuePatch) Apply(issue *Issue) {
	for _, fv := range p.Set {
		switch fv.Field {
		case FieldIssueTitle:
			issue.IssueTitle = fv.Value.(string)
		case FieldIssueText:
			issue.IssueText = fv.Value.(string)
		case FieldCreatedBy:
			issue.CreatedBy = fv.Value.(string)
		case FieldAssignedTo:
			issue.AssignedTo = fv.Value.(string)
		case FieldStatusText:
			issue.StatusText = fv.Value.(string)
		case FieldOpen:
			issue.Open = fv.Value.(bool)
		}
	}
	issue.UpdatedOn = p.UpdatedOn
}

func convert(field, raw string) (any, error) {
	switch field {
	case FieldOpen:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, field, raw)
		}
		return b, nil
	case FieldCreatedOn, FieldUpdatedOn:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, field, raw)
		}
		return t.UTC(), nil
	default:
		return raw, nil
	}
}
