package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used for spans started by this package.
const (
	TracerName   = "feedrank"
	DBTracerName = "feedrank/db"
)

// DBOperation represents the type of database operation being traced.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
	DBOperationExec   DBOperation = "exec"
)

// Database systems reported in db.system.
const (
	DBSystemPostgres = "postgresql"
	DBSystemRedis    = "redis"
)

// StartDBSpan starts a client span for a Postgres operation on table.
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "items", tracing.DBOperationQuery)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, func(error)) {
	return startClientSpan(ctx, DBSystemPostgres, table, operation)
}

// StartCacheSpan starts a client span for a Redis command against keyspace.
func StartCacheSpan(ctx context.Context, keyspace string, operation DBOperation) (context.Context, func(error)) {
	return startClientSpan(ctx, DBSystemRedis, keyspace, operation)
}

func startClientSpan(ctx context.Context, system, target string, operation DBOperation) (context.Context, func(error)) {
	spanName := string(operation)
	if target != "" {
		spanName += " " + target
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.system", system),
		attribute.String("db.operation", string(operation)),
	}
	if target != "" {
		attrs = append(attrs, attribute.String("db.sql.table", target))
	}

	ctx, span := otel.Tracer(DBTracerName).Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, endFunc(span)
}

// StartSpan starts an internal span named name.
//
//	ctx, endSpan := tracing.StartSpan(ctx, "feed.get_page")
//	defer func() { endSpan(err) }()
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name)
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
