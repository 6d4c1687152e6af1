// Package testutil provides a stub database that understands the statements the
// postgres document store issues, so the store can be exercised without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn records statements and keeps the documents table in memory.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Queries    []string
	Rows       map[string]StubRow
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailPing   bool
}

// StubRow is one stored document.
type StubRow struct {
	Collection string
	ID         string
	Data       string
}

var stubSeq atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string]StubRow)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// ExecCount returns how many statements matching prefix were executed.
func (c *StubConn) ExecCount(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, stmt := range c.Execs {
		if strings.HasPrefix(normalize(stmt), strings.ToUpper(prefix)) {
			n++
		}
	}
	return n
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	stmt := normalize(query)
	switch {
	case strings.HasPrefix(stmt, "INSERT INTO DOCUMENTS"):
		if len(args) != 4 {
			return nil, fmt.Errorf("insert expects 4 args, got %d", len(args))
		}
		path := fmt.Sprint(args[0].Value)
		c.Rows[path] = StubRow{
			Collection: fmt.Sprint(args[1].Value),
			ID:         fmt.Sprint(args[2].Value),
			Data:       fmt.Sprint(args[3].Value),
		}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(stmt, "DELETE FROM DOCUMENTS WHERE PATH"):
		if len(args) != 1 {
			return nil, fmt.Errorf("delete expects 1 arg")
		}
		path := fmt.Sprint(args[0].Value)
		if _, ok := c.Rows[path]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, path)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	stmt := normalize(query)
	switch {
	case strings.Contains(stmt, "WHERE PATH = $1"):
		path := fmt.Sprint(args[0].Value)
		rows := &stubRows{cols: []string{"id", "data"}}
		if row, ok := c.Rows[path]; ok {
			rows.rows = append(rows.rows, []driver.Value{row.ID, row.Data})
		}
		return rows, nil
	case strings.Contains(stmt, "WHERE COLLECTION = $1"):
		collection := fmt.Sprint(args[0].Value)
		var fragments []map[string]any
		for _, arg := range args[1:] {
			var frag map[string]any
			if err := json.Unmarshal([]byte(fmt.Sprint(arg.Value)), &frag); err != nil {
				return nil, fmt.Errorf("decode containment arg: %w", err)
			}
			fragments = append(fragments, frag)
		}
		paths := make([]string, 0, len(c.Rows))
		for path := range c.Rows {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		rows := &stubRows{cols: []string{"path", "id", "data"}}
		for _, path := range paths {
			row := c.Rows[path]
			if row.Collection != collection || !contains(row.Data, fragments) {
				continue
			}
			rows.rows = append(rows.rows, []driver.Value{path, row.ID, row.Data})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func contains(body string, fragments []map[string]any) bool {
	if len(fragments) == 0 {
		return true
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return false
	}
	for _, frag := range fragments {
		for k, want := range frag {
			if !reflect.DeepEqual(data[k], want) {
				return false
			}
		}
	}
	return true
}

func normalize(query string) string {
	return strings.ToUpper(strings.Join(strings.Fields(query), " "))
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
