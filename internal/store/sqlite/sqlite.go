package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/revittco/gatewayobs/internal/store"
	"github.com/revittco/gatewayobs/internal/telemetry"
	_ "modernc.org/sqlite"
)

// Compile-time checks that DB satisfies the store and sink interfaces.
var (
	_ store.Store        = (*DB)(nil)
	_ telemetry.SpanSink = (*DB)(nil)
)

// queryable abstracts *sql.DB and *sql.Tx for shared query code.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the SQLite-backed store implementation.
type DB struct {
	db *sql.DB
	q  queryable // points to db or active tx
}

// Option configures New.
type Option func(*options)

type options struct {
	inst *telemetry.Instrumentor
}

// WithInstrumentor opens the database through inst so that queries issued
// with a traced context are captured as spans.
func WithInstrumentor(inst *telemetry.Instrumentor) Option {
	return func(o *options) { o.inst = inst }
}

// New opens a SQLite database at the given path and runs migrations.
func New(ctx context.Context, path string, opts ...Option) (*DB, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	var (
		db  *sql.DB
		err error
	)
	if o.inst != nil {
		db, err = telemetry.Open("sqlite", dsn, o.inst)
	} else {
		db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{db: db, q: db}, nil
}

// SQL exposes the underlying handle for callers that issue their own
// queries against the instrumented connection pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, reusing d.q when it already is one
// so nested calls do not deadlock on MaxOpenConns(1).
func (d *DB) withTx(ctx context.Context, fn func(q queryable) error) error {
	if tx, ok := d.q.(*sql.Tx); ok {
		return fn(tx)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
