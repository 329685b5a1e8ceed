package telemetry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openInstrumented(t *testing.T, in *Instrumentor) *sql.DB {
	t.Helper()
	db, err := Open("sqlite", t.TempDir()+"/driver.db", in)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE tools (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func newDriverInstrumentor(capacity int) (*Instrumentor, *Queue) {
	q := NewQueue(capacity, nil)
	return NewInstrumentor(DefaultConfig(), q, WithLogger(quietLogger())), q
}

func TestDriver_ExecWithContextTrace(t *testing.T) {
	in, q := newDriverInstrumentor(10)
	db := openInstrumented(t, in)
	ctx := ContextWithTrace(context.Background(), "trace-1")

	if _, err := db.ExecContext(ctx, `INSERT INTO tools (name) VALUES (?), (?)`, "a", "b"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	s := drainOne(t, q)
	if s.Name != "db.query.insert" || s.TraceID != "trace-1" {
		t.Fatalf("span = %q/%q", s.Name, s.TraceID)
	}
	if s.RowCount == nil || *s.RowCount != 2 {
		t.Fatalf("row count = %v; want 2", s.RowCount)
	}
	if q.Stats().Total != 1 {
		t.Fatalf("total = %d; want 1 (schema setup has no trace)", q.Stats().Total)
	}
}

func TestDriver_QueryHasNoRowCount(t *testing.T) {
	in, q := newDriverInstrumentor(10)
	db := openInstrumented(t, in)
	ctx := ContextWithTrace(context.Background(), "trace-1")

	rows, err := db.QueryContext(ctx, `SELECT id, name FROM tools`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	rows.Close()

	s := drainOne(t, q)
	if s.Name != "db.query.select" {
		t.Fatalf("name = %q", s.Name)
	}
	if s.RowCount != nil {
		t.Fatalf("row count = %v; want nil", *s.RowCount)
	}
}

func TestDriver_PreparedStatement(t *testing.T) {
	in, q := newDriverInstrumentor(10)
	db := openInstrumented(t, in)
	ctx := ContextWithTrace(context.Background(), "trace-1")

	stmt, err := db.PrepareContext(ctx, `INSERT INTO tools (name) VALUES (?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	if got := q.Stats().Total; got != 3 {
		t.Fatalf("total = %d; want 3", got)
	}
}

func TestDriver_AttachTrace(t *testing.T) {
	in, q := newDriverInstrumentor(10)
	db := openInstrumented(t, in)
	ctx := context.Background()

	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	if err := AttachTrace(conn, "trace-conn"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO tools (name) VALUES ('x')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if s := drainOne(t, q); s.TraceID != "trace-conn" {
		t.Fatalf("trace = %q", s.TraceID)
	}
	conn.Close()

	// The pooled connection is reset before reuse, so the trace is gone.
	if _, err := db.ExecContext(ctx, `INSERT INTO tools (name) VALUES ('y')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := q.Stats().Total; got != 1 {
		t.Fatalf("total = %d; want 1", got)
	}
}

func TestDriver_AttachTraceNotInstrumented(t *testing.T) {
	db, err := sql.Open("sqlite", t.TempDir()+"/plain.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()

	if err := AttachTrace(conn, "trace"); !errors.Is(err, ErrNotInstrumented) {
		t.Fatalf("err = %v; want ErrNotInstrumented", err)
	}
}

func TestDriver_Suppressed(t *testing.T) {
	in, q := newDriverInstrumentor(10)
	db := openInstrumented(t, in)
	ctx := Suppress(ContextWithTrace(context.Background(), "trace-1"))

	if _, err := db.ExecContext(ctx, `INSERT INTO tools (name) VALUES ('x')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if q.Stats().Total != 0 {
		t.Fatal("suppressed statement was captured")
	}
}

func TestDriver_FailedStatement(t *testing.T) {
	in, q := newDriverInstrumentor(10)
	db := openInstrumented(t, in)
	ctx := ContextWithTrace(context.Background(), "trace-1")

	if _, err := db.ExecContext(ctx, `INSERT INTO missing (x) VALUES (1)`); err == nil {
		t.Fatal("expected error")
	}
	s, ok := q.Dequeue(context.Background(), time.Second)
	if !ok {
		t.Fatal("failed statement produced no span")
	}
	if s.Status != StatusError {
		t.Fatalf("status = %q; want error", s.Status)
	}
}

func TestDriver_QueueFullDoesNotFailQuery(t *testing.T) {
	in, q := newDriverInstrumentor(1)
	db := openInstrumented(t, in)
	ctx := ContextWithTrace(context.Background(), "trace-1")

	for i := 0; i < 5; i++ {
		if _, err := db.ExecContext(ctx, `INSERT INTO tools (name) VALUES ('x')`); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if s := q.Stats(); s.Total != 5 || s.Dropped != 4 {
		t.Fatalf("stats = %+v", s)
	}
}

// legacyConn implements only the pre-context driver.Conn methods.
type legacyConn struct{ begun int }

func (c *legacyConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("not supported")
}

func (c *legacyConn) Close() error { return nil }

func (c *legacyConn) Begin() (driver.Tx, error) {
	c.begun++
	return legacyTx{}, nil
}

type legacyTx struct{}

func (legacyTx) Commit() error { return nil }

func (legacyTx) Rollback() error { return nil }

func TestDriver_BeginTxLegacyConn(t *testing.T) {
	in, _ := newDriverInstrumentor(10)
	raw := &legacyConn{}
	conn := &instrumentedConn{Conn: raw, id: "c1", inst: in}
	ctx := context.Background()

	if _, err := conn.BeginTx(ctx, driver.TxOptions{ReadOnly: true}); err == nil {
		t.Fatal("read-only tx on legacy conn: expected error")
	}
	serializable := driver.TxOptions{Isolation: driver.IsolationLevel(sql.LevelSerializable)}
	if _, err := conn.BeginTx(ctx, serializable); err == nil {
		t.Fatal("serializable tx on legacy conn: expected error")
	}
	if raw.begun != 0 {
		t.Fatalf("legacy Begin called %d times for rejected options", raw.begun)
	}

	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("default tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if raw.begun != 1 {
		t.Fatalf("legacy Begin called %d times; want 1", raw.begun)
	}
}
