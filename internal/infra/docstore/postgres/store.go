// Package postgres implements the document store on PostgreSQL, keeping each
// document body in a JSONB column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"engagement/internal/docstore/core"
	"engagement/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ core.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/engagement?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists documents to a single "documents" table.
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed store using dsn (falls back to defaultDSN) and
// ensures the documents table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection ON documents (collection)`,
		`CREATE INDEX IF NOT EXISTS documents_data ON documents USING GIN (data jsonb_path_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure documents table: %w", err)
		}
	}
	return nil
}

// Driver reports the backend kind.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (domain.Document, bool, error) {
	if err := core.ValidateDocumentPath(path); err != nil {
		return domain.Document{}, false, err
	}
	clean := core.CleanPath(path)
	var id, body string
	err := s.db.QueryRowContext(ctx, `SELECT id, data FROM documents WHERE path = $1`, clean).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("select %s: %w", path, err)
	}
	data, err := core.Decode([]byte(body))
	if err != nil {
		return domain.Document{}, false, err
	}
	return domain.Document{ID: id, Path: clean, Data: data}, true, nil
}

// Create stores data under a generated id.
func (s *Store) Create(ctx context.Context, collection string, data map[string]any) (domain.Document, error) {
	if err := core.ValidateCollectionPath(collection); err != nil {
		return domain.Document{}, err
	}
	path := domain.JoinPath(collection, core.NewID())
	if err := s.Set(ctx, path, data); err != nil {
		return domain.Document{}, err
	}
	normalized, err := core.Normalize(data)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: domain.IDOf(path), Path: path, Data: normalized}, nil
}

// Set creates or replaces the document at path.
func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	if err := core.ValidateDocumentPath(path); err != nil {
		return err
	}
	body, err := core.Encode(data)
	if err != nil {
		return err
	}
	clean := core.CleanPath(path)
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (path, collection, id, data) VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data`,
		clean, domain.CollectionOf(clean), domain.IDOf(clean), string(body))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}

// Delete removes the document at path if present.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.DeleteBatch(ctx, []string{path})
}

// DeleteBatch removes every path in one SQL transaction.
func (s *Store) DeleteBatch(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := core.ValidateDocumentPath(p); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, core.CleanPath(p)); err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Query returns the direct children of q.Collection matching q. Equality filters
// are pushed down as JSONB containment; the rest is evaluated in process.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := core.ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	stmt, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer func() { _ = rows.Close() }()
	var docs []domain.Document
	for rows.Next() {
		var path, id, body string
		if err := rows.Scan(&path, &id, &body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		data, err := core.Decode([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, domain.Document{ID: id, Path: path, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return core.Apply(docs, q), nil
}

func buildSelect(q domain.Query) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`SELECT path, id, data FROM documents WHERE collection = $1`)
	args := []any{core.CleanPath(q.Collection)}
	for _, f := range q.Filters {
		if f.Op != domain.FilterEqual && f.Op != "" {
			continue
		}
		fragment, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, string(fragment))
		fmt.Fprintf(&b, ` AND data @> $%d::jsonb`, len(args))
	}
	return b.String(), args, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
