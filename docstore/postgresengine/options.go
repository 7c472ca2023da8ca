package postgresengine

import (
	"github.com/pagedstore/docstore-go/docstore"
)

// Option defines a functional option for configuring an Engine.
type Option func(*Engine) error

// WithTableName sets the documents table name for the Engine.
func WithTableName(tableName string) Option {
	return func(e *Engine) error {
		if tableName == "" {
			return docstore.ErrEmptyTableName
		}

		e.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Document counts, durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger docstore.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled, enabling unified observability.
func WithContextualLogger(logger docstore.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// The metrics collector will receive performance and operational metrics including
// query/write durations, document counts, and database errors.
func WithMetrics(collector docstore.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
// The tracing collector will receive distributed tracing information including
// span creation for query operations, context propagation, and error tracking.
func WithTracing(collector docstore.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
