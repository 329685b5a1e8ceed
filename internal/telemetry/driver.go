package telemetry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrNotInstrumented is returned by AttachTrace when the connection was not
// opened through an instrumented connector.
var ErrNotInstrumented = errors.New("connection is not instrumented")

var errUnsupportedTxOptions = errors.New("driver does not support non-default transaction options")

// Open opens a *sql.DB for a registered driver with every connection
// wrapped by inst.
func Open(driverName, dsn string, inst *Instrumentor) (*sql.DB, error) {
	probe, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	drv := probe.Driver()
	_ = probe.Close()

	base, err := DSNConnector(drv, dsn)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(NewConnector(base, inst)), nil
}

// DSNConnector returns a driver.Connector for dsn, using the driver's own
// connector when it provides one.
func DSNConnector(d driver.Driver, dsn string) (driver.Connector, error) {
	if dc, ok := d.(driver.DriverContext); ok {
		c, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, fmt.Errorf("open connector: %w", err)
		}
		return c, nil
	}
	return dsnConnector{driver: d, dsn: dsn}, nil
}

type dsnConnector struct {
	driver driver.Driver
	dsn    string
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) { return c.driver.Open(c.dsn) }
func (c dsnConnector) Driver() driver.Driver { return c.driver }

// NewConnector wraps base so that statements run on its connections are
// reported to inst.
func NewConnector(base driver.Connector, inst *Instrumentor) driver.Connector {
	return &connector{base: base, inst: inst}
}

type connector struct {
	base driver.Connector
	inst *Instrumentor
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.base.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &instrumentedConn{Conn: conn, id: uuid.NewString(), inst: c.inst}, nil
}

func (c *connector) Driver() driver.Driver { return c.base.Driver() }

// Close lets sql.DB.Close release the underlying connector.
func (c *connector) Close() error {
	if cl, ok := c.base.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// AttachTrace associates traceID with the connection held by conn, so
// queries run on it resolve a trace even when their context carries none.
// The association lasts until the connection is returned to the pool.
func AttachTrace(conn *sql.Conn, traceID string) error {
	return conn.Raw(func(dc any) error {
		ic, ok := dc.(*instrumentedConn)
		if !ok {
			return ErrNotInstrumented
		}
		ic.traceID = traceID
		return nil
	})
}

// instrumentedConn is used by one goroutine at a time (database/sql holds
// the connection exclusively), so traceID needs no locking.
type instrumentedConn struct {
	driver.Conn
	id      string
	inst    *Instrumentor
	traceID string
}

func (c *instrumentedConn) before(ctx context.Context, query string, args []driver.NamedValue) {
	c.inst.Before(ctx, c.id, query, namedArgs(args), false)
}

func (c *instrumentedConn) after(ctx context.Context, rows *int64, err error) {
	if errors.Is(err, driver.ErrSkip) {
		c.inst.Discard(c.id)
		return
	}
	c.inst.After(ctx, c.id, QueryResult{RowCount: rows, Err: err, ConnTraceID: c.traceID})
}

func (c *instrumentedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	c.before(ctx, query, args)
	res, err := execer.ExecContext(ctx, query, args)
	c.after(ctx, rowsAffected(res, err), err)
	return res, err
}

func (c *instrumentedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	c.before(ctx, query, args)
	rows, err := queryer.QueryContext(ctx, query, args)
	c.after(ctx, nil, err)
	return rows, err
}

func (c *instrumentedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *instrumentedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &instrumentedStmt{Stmt: stmt, conn: c, query: query}, nil
}

// BeginTx falls back to the legacy Begin only for default options; the
// legacy call cannot honour an isolation level or read-only flag.
func (c *instrumentedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) || opts.ReadOnly {
		return nil, errUnsupportedTxOptions
	}
	return c.Conn.Begin() //nolint:staticcheck // driver has no ConnBeginTx
}

func (c *instrumentedConn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ResetSession clears the attached trace before the pool hands the
// connection to another caller.
func (c *instrumentedConn) ResetSession(ctx context.Context) error {
	c.traceID = ""
	if r, ok := c.Conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *instrumentedConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *instrumentedConn) CheckNamedValue(nv *driver.NamedValue) error {
	if ch, ok := c.Conn.(driver.NamedValueChecker); ok {
		return ch.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

type instrumentedStmt struct {
	driver.Stmt
	conn  *instrumentedConn
	query string
}

func (s *instrumentedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.conn.before(ctx, s.query, args)
	var (
		res driver.Result
		err error
	)
	if e, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = e.ExecContext(ctx, args)
	} else {
		var vals []driver.Value
		if vals, err = plainValues(args); err == nil {
			res, err = s.Stmt.Exec(vals)
		}
	}
	s.conn.after(ctx, rowsAffected(res, err), err)
	return res, err
}

func (s *instrumentedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.conn.before(ctx, s.query, args)
	var (
		rows driver.Rows
		err  error
	)
	if q, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = q.QueryContext(ctx, args)
	} else {
		var vals []driver.Value
		if vals, err = plainValues(args); err == nil {
			rows, err = s.Stmt.Query(vals)
		}
	}
	s.conn.after(ctx, nil, err)
	return rows, err
}

func (s *instrumentedStmt) CheckNamedValue(nv *driver.NamedValue) error {
	if ch, ok := s.Stmt.(driver.NamedValueChecker); ok {
		return ch.CheckNamedValue(nv)
	}
	return s.conn.CheckNamedValue(nv)
}

func rowsAffected(res driver.Result, err error) *int64 {
	if err != nil || res == nil {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	return &n
}

func namedArgs(args []driver.NamedValue) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

func plainValues(args []driver.NamedValue) ([]driver.Value, error) {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		if a.Name != "" {
			return nil, fmt.Errorf("driver does not support named parameter %q", a.Name)
		}
		out[i] = a.Value
	}
	return out, nil
}
