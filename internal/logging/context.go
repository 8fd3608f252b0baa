package logging

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every log record emitted with a context carrying them.
type LogFields struct {
	Provider  string // provider key, e.g. "notion"
	UserID    string
	OrgID     string
	SessionID string // one connect attempt
	Component string // e.g. "connect.widget"
}

// WithLogFields enriches ctx with fields. Non-empty values in fields replace existing ones.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if ctx == nil {
		return LogFields{}
	}
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing
	if next.Provider != "" {
		result.Provider = next.Provider
	}
	if next.UserID != "" {
		result.UserID = next.UserID
	}
	if next.OrgID != "" {
		result.OrgID = next.OrgID
	}
	if next.SessionID != "" {
		result.SessionID = next.SessionID
	}
	if next.Component != "" {
		result.Component = next.Component
	}
	return result
}

// Truncate shortens s to maxLen bytes, appending "..." if it was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
