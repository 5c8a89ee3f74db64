package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type operationType string

const (
	opExec     operationType = "exec"
	opQuery    operationType = "query"
	opBegin    operationType = "begin"
	opCommit   operationType = "commit"
	opRollback operationType = "rollback"
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
	check  func(args []driver.NamedValue) error
}

type mockResult struct {
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return 0, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func failingQueryOp(query string, err error) mockOperation {
	return mockOperation{typ: opQuery, query: query, err: err}
}

func beginOp() mockOperation    { return mockOperation{typ: opBegin} }
func commitOp() mockOperation   { return mockOperation{typ: opCommit} }
func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

// scriptedDriver 按顺序回放预期的 SQL 操作，任何偏差都作为驱动错误返回。
type scriptedDriver struct {
	mu   sync.Mutex
	ops  []mockOperation
	next int
}

var scriptSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *scriptedDriver) {
	t.Helper()
	drv := &scriptedDriver{ops: ops}
	name := fmt.Sprintf("scripted-mysql-%d", scriptSeq.Add(1))
	sql.Register(name, drv)
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, drv
}

func (d *scriptedDriver) assertConsumed(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next != len(d.ops) {
		t.Fatalf("scripted operations left: consumed %d of %d", d.next, len(d.ops))
	}
}

// step 取出下一条操作并校验类型与 SQL，操作自带的 err 原样返回。
func (d *scriptedDriver) step(typ operationType, query string, args []driver.NamedValue) (mockOperation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.ops) {
		return mockOperation{}, fmt.Errorf("unexpected %s %q", typ, query)
	}
	op := d.ops[d.next]
	d.next++
	if op.typ != typ {
		return op, fmt.Errorf("step %d: want %s, got %s", d.next, op.typ, typ)
	}
	if op.query != "" && squash(op.query) != squash(query) {
		return op, fmt.Errorf("step %d: want %q, got %q", d.next, squash(op.query), squash(query))
	}
	if op.err != nil {
		return op, op.err
	}
	if op.check != nil {
		return op, op.check(args)
	}
	return op, nil
}

func (d *scriptedDriver) Open(string) (driver.Conn, error) { return scriptedConn{d}, nil }

type scriptedConn struct{ d *scriptedDriver }

func (c scriptedConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c scriptedConn) Close() error               { return nil }
func (c scriptedConn) Ping(context.Context) error { return nil }

func (c scriptedConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c scriptedConn) Commit() error {
	_, err := c.d.step(opCommit, "", nil)
	return err
}

func (c scriptedConn) Rollback() error {
	_, err := c.d.step(opRollback, "", nil)
	return err
}

func (c scriptedConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.d.step(opBegin, "", nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c scriptedConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.d.step(opExec, query, args)
	if err != nil {
		return nil, err
	}
	return op.result, nil
}

func (c scriptedConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.d.step(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &scriptedRows{data: op.rows}, nil
}

type scriptedRows struct {
	data mockRowsData
	pos  int
}

func (r *scriptedRows) Columns() []string { return r.data.columns }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data.values) {
		return io.EOF
	}
	copy(dest, r.data.values[r.pos])
	r.pos++
	return nil
}

func squash(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
