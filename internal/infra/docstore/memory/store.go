// Package memory implements an in-memory document store on go-memdb.
package memory

import (
	"context"
	"errors"
	"fmt"

	"engagement/internal/docstore/core"
	"engagement/pkg/domain"

	"github.com/hashicorp/go-memdb"
)

var _ core.Store = (*Store)(nil)

const tableDocuments = "documents"

type entry struct {
	Path       string
	Collection string
	ID         string
	Body       []byte
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableDocuments: {
				Name: tableDocuments,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Path"},
					},
					"collection": {
						Name:    "collection",
						Indexer: &memdb.StringFieldIndex{Field: "Collection"},
					},
				},
			},
		},
	}
}

// Store keeps documents in a go-memdb table indexed by path and collection.
type Store struct {
	db *memdb.MemDB
}

// New constructs an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &Store{db: db}, nil
}

// Driver reports the backend kind.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Get returns the document at path.
func (s *Store) Get(_ context.Context, path string) (domain.Document, bool, error) {
	if err := core.ValidateDocumentPath(path); err != nil {
		return domain.Document{}, false, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableDocuments, "id", core.CleanPath(path))
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("lookup %s: %w", path, err)
	}
	if raw == nil {
		return domain.Document{}, false, nil
	}
	doc, err := toDocument(raw.(*entry))
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
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
	doc, _, err := s.Get(ctx, path)
	return doc, err
}

// Set creates or replaces the document at path.
func (s *Store) Set(_ context.Context, path string, data map[string]any) error {
	if err := core.ValidateDocumentPath(path); err != nil {
		return err
	}
	body, err := core.Encode(data)
	if err != nil {
		return err
	}
	clean := core.CleanPath(path)
	e := &entry{
		Path:       clean,
		Collection: domain.CollectionOf(clean),
		ID:         domain.IDOf(clean),
		Body:       body,
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableDocuments, e); err != nil {
		return fmt.Errorf("insert %s: %w", path, err)
	}
	txn.Commit()
	return nil
}

// Delete removes the document at path if present.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.DeleteBatch(ctx, []string{path})
}

// DeleteBatch removes every path inside a single write transaction.
func (s *Store) DeleteBatch(_ context.Context, paths []string) error {
	for _, p := range paths {
		if err := core.ValidateDocumentPath(p); err != nil {
			return err
		}
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, p := range paths {
		raw, err := txn.First(tableDocuments, "id", core.CleanPath(p))
		if err != nil {
			return fmt.Errorf("lookup %s: %w", p, err)
		}
		if raw == nil {
			continue
		}
		if err := txn.Delete(tableDocuments, raw); err != nil && !errors.Is(err, memdb.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	txn.Commit()
	return nil
}

// Query returns the direct children of q.Collection matching q.
func (s *Store) Query(_ context.Context, q domain.Query) ([]domain.Document, error) {
	if err := core.ValidateCollectionPath(q.Collection); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableDocuments, "collection", core.CleanPath(q.Collection))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
	}
	var docs []domain.Document
	for raw := it.Next(); raw != nil; raw = it.Next() {
		doc, err := toDocument(raw.(*entry))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return core.Apply(docs, q), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func toDocument(e *entry) (domain.Document, error) {
	data, err := core.Decode(e.Body)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%s: %w", e.Path, err)
	}
	return domain.Document{ID: e.ID, Path: e.Path, Data: data}, nil
}
