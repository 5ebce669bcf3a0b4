package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are added to every log record written with a context that
// carries them.
type LogFields struct {
	Component string // e.g. "api", "mcp", "service"
	Project   string
	IssueID   string
}

// WithLogFields enriches ctx with fields. Non-empty values in fields replace
// the ones already on the context.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	if fields.Project != "" {
		merged.Project = fields.Project
	}
	if fields.IssueID != "" {
		merged.IssueID = fields.IssueID
	}
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields on ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}
