package postgresengine

import (
	"context"
	"math"
	"time"

	"github.com/pagedstore/docstore-go/docstore"
)

const (
	metricQueryDuration    = "docstore_query_duration_seconds"
	metricGetDuration      = "docstore_get_duration_seconds"
	metricWriteDuration    = "docstore_write_duration_seconds"
	metricDeleteDuration   = "docstore_delete_duration_seconds"
	metricDocumentsQueried = "docstore_documents_queried_total"
	metricDatabaseErrors   = "docstore_database_errors_total"

	operationQuery       = "query"
	operationGet         = "get"
	operationSet         = "set"
	operationDelete      = "delete"
	operationBatchDelete = "batch_delete"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeDatabase   = "database_error"
	errorTypeQueryBuild = "query_build_error"
	errorTypeRowScan    = "row_scan_error"

	spanNameQuery = "docstore.query"

	spanAttrOperation     = "operation"
	spanAttrStatus        = "status"
	spanAttrErrorType     = "error_type"
	spanAttrCollection    = "collection"
	spanAttrDocumentCount = "document_count"
	spanAttrDurationMS    = "duration_ms"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if a
// logger is configured. The contextual logger wins when both are set so trace
// correlation is not lost.
func (e *Engine) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery)
	case e.logger != nil:
		e.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (e *Engine) logOperation(ctx context.Context, msg string, args ...any) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.InfoContext(ctx, msg, args...)
	case e.logger != nil:
		e.logger.Info(msg, args...)
	}
}

// logWarn logs warnings if a logger is configured.
func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.WarnContext(ctx, msg, args...)
	case e.logger != nil:
		e.logger.Warn(msg, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (e *Engine) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case e.contextualLogger != nil:
		e.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	case e.logger != nil:
		e.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (e *Engine) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordDurationMetrics records duration metrics if the collector is
// configured, preferring the context-aware method when the collector supports it.
func (e *Engine) recordDurationMetrics(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		spanAttrStatus:    status,
	}

	if contextualCollector, ok := e.metricsCollector.(docstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		e.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordValueMetrics records value metrics if the collector is configured.
func (e *Engine) recordValueMetrics(
	ctx context.Context,
	metricName string,
	value float64,
	operation, status string,
) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		spanAttrStatus:    status,
	}

	if contextualCollector, ok := e.metricsCollector.(docstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
	} else {
		e.metricsCollector.RecordValue(metricName, value, labels)
	}
}

// recordErrorMetrics records error metrics if the collector is configured.
func (e *Engine) recordErrorMetrics(ctx context.Context, operation, errorType string) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		spanAttrStatus:    statusError,
		spanAttrErrorType: errorType,
	}

	if contextualCollector, ok := e.metricsCollector.(docstore.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
	} else {
		e.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
	}
}

// startSpan starts a tracing span if the tracing collector is configured.
func (e *Engine) startSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, docstore.SpanContext) {
	if e.tracingCollector != nil {
		return e.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishSpanSuccess finishes a span as successful with result attributes.
func (e *Engine) finishSpanSuccess(span docstore.SpanContext, attrs map[string]string) {
	if e.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(statusSuccess)
	for key, value := range attrs {
		span.AddAttribute(key, value)
	}

	e.tracingCollector.FinishSpan(span, statusSuccess, attrs)
}

// finishSpanError finishes a span with error details.
func (e *Engine) finishSpanError(span docstore.SpanContext, errorType string) {
	if e.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(statusError)
	span.AddAttribute(spanAttrErrorType, errorType)

	e.tracingCollector.FinishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType})
}
