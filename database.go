package tracekit

import (
	"context"
	"database/sql"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracedDB wraps a sql.DB so every operation is recorded as a client span on
// the manager's backend. The tracer is resolved through the manager per
// call, so wrapping before Initialize is fine and a forced reinitialization
// retargets existing wrappers.
type TracedDB struct {
	db      *sql.DB
	manager *Manager
	system  string
	name    string
}

// WrapDB wraps db using the Default manager. system is the db.system span
// attribute ("sqlite", "postgresql", ...), name the logical database name.
func WrapDB(db *sql.DB, system, name string) *TracedDB {
	return WrapDBWithManager(db, Default(), system, name)
}

// WrapDBWithManager wraps db bound to a specific manager.
func WrapDBWithManager(db *sql.DB, m *Manager, system, name string) *TracedDB {
	return &TracedDB{db: db, manager: m, system: system, name: name}
}

// DB returns the underlying sql.DB.
func (t *TracedDB) DB() *sql.DB { return t.db }

func (t *TracedDB) baseAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.DBSystemKey.String(t.system)}
	if t.name != "" {
		attrs = append(attrs, semconv.DBName(t.name))
	}
	return attrs
}

func (t *TracedDB) startSpan(ctx context.Context, name, query, operation string) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.baseAttributes()...),
	}
	if query != "" {
		opts = append(opts, trace.WithAttributes(semconv.DBStatement(truncateQuery(query))))
	}
	if operation != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("db.operation", operation)))
	}
	return t.manager.Tracer().Start(ctx, name, opts...)
}

// Query runs a query and records it as a span.
func (t *TracedDB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := t.startSpan(ctx, "db.query", query, "query")
	defer span.End()

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}

// QueryRow runs a single-row query and records it as a span.
func (t *TracedDB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	ctx, span := t.startSpan(ctx, "db.query_row", query, "query_row")
	defer span.End()

	return t.db.QueryRowContext(ctx, query, args...)
}

// Exec runs a statement and records it as a span named after the detected
// SQL operation.
func (t *TracedDB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	operation := detectOperation(query)
	ctx, span := t.startSpan(ctx, "db."+operation, query, operation)
	defer span.End()

	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if result != nil {
		if affected, err := result.RowsAffected(); err == nil {
			span.SetAttributes(attribute.Int64("db.rows_affected", affected))
		}
	}
	return result, err
}

// Ping verifies the connection and records it as a span.
func (t *TracedDB) Ping(ctx context.Context) error {
	ctx, span := t.startSpan(ctx, "db.ping", "", "")
	defer span.End()

	err := t.db.PingContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Begin opens a transaction. The transaction span stays open until Commit or
// Rollback.
func (t *TracedDB) Begin(ctx context.Context) (*TracedTx, error) {
	ctx, span := t.startSpan(ctx, "db.transaction", "", "begin")

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	return &TracedTx{tx: tx, parent: t, span: span}, nil
}

// Close closes the underlying connection.
func (t *TracedDB) Close() error { return t.db.Close() }

// TracedTx is a transaction whose statements are recorded as child spans of
// the transaction span.
type TracedTx struct {
	tx     *sql.Tx
	parent *TracedDB
	span   trace.Span
}

// Query runs a query inside the transaction.
func (x *TracedTx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := x.parent.startSpan(ctx, "db.tx.query", query, "query")
	defer span.End()

	rows, err := x.tx.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}

// Exec runs a statement inside the transaction.
func (x *TracedTx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	operation := detectOperation(query)
	ctx, span := x.parent.startSpan(ctx, "db.tx."+operation, query, operation)
	defer span.End()

	result, err := x.tx.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// Commit commits the transaction and closes its span.
func (x *TracedTx) Commit() error {
	x.span.SetAttributes(attribute.String("db.transaction.status", "commit"))
	err := x.tx.Commit()
	if err != nil {
		x.span.RecordError(err)
		x.span.SetStatus(codes.Error, err.Error())
	}
	x.span.End()
	return err
}

// Rollback rolls the transaction back and closes its span.
func (x *TracedTx) Rollback() error {
	x.span.SetAttributes(attribute.String("db.transaction.status", "rollback"))
	err := x.tx.Rollback()
	if err != nil {
		x.span.RecordError(err)
		x.span.SetStatus(codes.Error, err.Error())
	}
	x.span.End()
	return err
}

// maxQueryLength caps db.statement to keep spans small.
const maxQueryLength = 2048

func truncateQuery(query string) string {
	if len(query) <= maxQueryLength {
		return query
	}
	return query[:maxQueryLength] + "..."
}

func detectOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "exec"
	}
	switch strings.ToLower(fields[0]) {
	case "select", "insert", "update", "delete":
		return strings.ToLower(fields[0])
	default:
		return "exec"
	}
}
