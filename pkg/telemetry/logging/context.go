package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// OperationIDKey is the context key for a unique identifier assigned to
	// one CLI invocation or library call (e.g. one refresh, one provide).
	OperationIDKey contextKey = "operation_id"

	// RepoAliasKey is the context key for the repository alias an
	// operation is acting on.
	RepoAliasKey contextKey = "alias"

	// ServiceAliasKey is the context key for the service alias an
	// operation is acting on.
	ServiceAliasKey contextKey = "service"

	// SchemeKey is the context key for the URL scheme (http, https, file,
	// ftp) a fetch is using.
	SchemeKey contextKey = "scheme"
)

// WithOperationID adds an operation identifier to the context.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OperationIDKey, id)
}

// GetOperationID retrieves the operation identifier from the context.
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(OperationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRepoAlias adds a repository alias to the context.
func WithRepoAlias(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, RepoAliasKey, alias)
}

// GetRepoAlias retrieves the repository alias from the context.
func GetRepoAlias(ctx context.Context) string {
	if alias, ok := ctx.Value(RepoAliasKey).(string); ok {
		return alias
	}
	return ""
}

// WithServiceAlias adds a service alias to the context.
func WithServiceAlias(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, ServiceAliasKey, alias)
}

// GetServiceAlias retrieves the service alias from the context.
func GetServiceAlias(ctx context.Context) string {
	if alias, ok := ctx.Value(ServiceAliasKey).(string); ok {
		return alias
	}
	return ""
}

// WithScheme adds a URL scheme to the context.
func WithScheme(ctx context.Context, scheme string) context.Context {
	return context.WithValue(ctx, SchemeKey, scheme)
}

// GetScheme retrieves the URL scheme from the context.
func GetScheme(ctx context.Context) string {
	if scheme, ok := ctx.Value(SchemeKey).(string); ok {
		return scheme
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if id := GetOperationID(ctx); id != "" {
		fields = append(fields, "operation_id", id)
	}
	if alias := GetRepoAlias(ctx); alias != "" {
		fields = append(fields, "alias", alias)
	}
	if alias := GetServiceAlias(ctx); alias != "" {
		fields = append(fields, "service", alias)
	}
	if scheme := GetScheme(ctx); scheme != "" {
		fields = append(fields, "scheme", scheme)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.DebugContext(cl.ctx, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.InfoContext(cl.ctx, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.WarnContext(cl.ctx, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.ErrorContext(cl.ctx, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
