package activerecord

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/darkdef/active-record/internal/observability"
)

// Rows is the subset of *sql.Rows the engine consumes.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs SQL statements. *sql.DB satisfies it through
// StandardExecutor; tests substitute their own.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// StandardExecutor adapts *sql.DB to QueryExecutor.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor wraps a database handle.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

// QueryContext runs the statement on the wrapped handle.
func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Conn binds a registry of record types to a database handle and carries
// the logger and metrics every query goes through. It is safe for
// concurrent use.
type Conn struct {
	exec     QueryExecutor
	db       *sql.DB
	registry *Registry
	factory  Factory
	logger   *slog.Logger
	metrics  *observability.QueryMetrics
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithLogger sets the statement logger. The default discards nothing and
// writes through slog's default handler.
func WithLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) { c.logger = logger }
}

// WithFactory sets the record factory used during population.
func WithFactory(f Factory) ConnOption {
	return func(c *Conn) { c.factory = f }
}

// WithMetrics sets the query metrics sink. Nil disables recording.
func WithMetrics(m *observability.QueryMetrics) ConnOption {
	return func(c *Conn) { c.metrics = m }
}

// NewConn builds a connection from an executor. Use Open or OpenDB for the
// common *sql.DB case.
func NewConn(exec QueryExecutor, registry *Registry, opts ...ConnOption) *Conn {
	c := &Conn{
		exec:     exec,
		registry: registry,
		factory:  registryFactory{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenDB wraps an existing database handle.
func OpenDB(db *sql.DB, registry *Registry, opts ...ConnOption) *Conn {
	c := NewConn(NewStandardExecutor(db), registry, opts...)
	c.db = db
	return c
}

// Open opens an instrumented MySQL-protocol connection: statements produce
// spans and pool statistics are exported as metrics.
func Open(dsn string, registry *Registry, opts ...ConnOption) (*Conn, error) {
	db, err := otelsql.Open("mysql", dsn,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL)); err != nil {
		return nil, fmt.Errorf("failed to register db stats metrics: %w", err)
	}
	return OpenDB(db, registry, opts...), nil
}

// DB returns the underlying handle, or nil when the connection was built
// from a custom executor.
func (c *Conn) DB() *sql.DB { return c.db }

// Close closes the underlying handle when there is one.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Find starts a query for the named record type.
func (c *Conn) Find(typeName string) *Query {
	return newQuery(c, typeName)
}

// FindBySQL starts a query from a raw statement. SQL generation is
// bypassed but population and With eager loading still apply.
func (c *Conn) FindBySQL(typeName, sqlText string, args ...any) *Query {
	q := newQuery(c, typeName)
	q.sqlText = sqlText
	q.sqlArgs = args
	return q
}

// QueryRows runs a raw statement and returns the scanned rows.
func (c *Conn) QueryRows(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	return c.queryAll(ctx, "", observability.QueryKindRaw, sqlText, args)
}

// queryAll executes one statement, scans every row into a column map and
// reports the execution to the logger, tracer and metrics.
func (c *Conn) queryAll(ctx context.Context, table, kind, sqlText string, args []any) (rows []map[string]any, err error) {
	ctx, span := observability.StartSpan(ctx, "query.execute",
		attribute.String("db.table", table),
		attribute.String("query.kind", kind),
	)
	defer func() { observability.EndSpan(span, err) }()

	queryID := uuid.NewString()
	c.logger.DebugContext(ctx, "executing statement",
		slog.String("query_id", queryID),
		slog.String("sql", sqlText),
		slog.Int("args", len(args)),
		slog.String("kind", kind),
	)

	start := time.Now()
	raw, err := c.exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("statement execution failed: %w", err)
	}
	defer raw.Close()

	rows, err = scanAll(raw)
	if err != nil {
		return nil, fmt.Errorf("row scan failed: %w", err)
	}

	elapsed := time.Since(start)
	c.metrics.RecordQuery(ctx, table, kind, elapsed, int64(len(rows)))
	c.logger.DebugContext(ctx, "statement complete",
		slog.String("query_id", queryID),
		slog.Int("rows", len(rows)),
		slog.Duration("elapsed", elapsed),
	)
	return rows, nil
}

func scanAll(rows Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue converts driver byte slices to strings so attribute values
// compare and print predictably.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
