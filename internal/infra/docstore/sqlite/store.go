// Package sqlite implements the document store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"engagement/internal/docstore/core"
	"engagement/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ core.Store = (*Store)(nil)

const defaultPath = "engagement.db"

var sqlOpen = sql.Open

// Store keeps one row per document with the JSON body in a TEXT column.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating when needed) the SQLite file at path.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection ON documents (collection)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create documents table: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Driver reports the backend kind.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Get returns the document at path.
func (s *Store) Get(ctx context.Context, path string) (domain.Document, bool, error) {
	if err := core.ValidateDocumentPath(path); err != nil {
		return domain.Document{}, false, err
	}
	clean := core.CleanPath(path)
	var id, body string
	err := s.db.QueryRowContext(ctx, `SELECT id, data FROM documents WHERE path = ?`, clean).Scan(&id, &body)
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
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (path, collection, id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data`,
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
func (s *Store) DeleteBatch(ctx context.Context, paths []string) (retErr error) {
	for _, p := range paths {
		if err := core.ValidateDocumentPath(p); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, core.CleanPath(p)); err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query returns the direct children of q.Collection matching q.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := core.ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path, id, data FROM documents WHERE collection = ?`, core.CleanPath(q.Collection))
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

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
