// Package core defines the shared contract and query evaluation used by the
// document store backends.
package core

import (
	"errors"
	"fmt"
	"strings"

	"engagement/pkg/domain"

	"github.com/google/uuid"
)

// Driver identifies a concrete document store backend implementation.
type Driver string

const (
	// DriverMemory is the in-memory backend used by tests and ephemeral servers.
	DriverMemory Driver = "memory"
	// DriverSQLite is the embedded single-file backend (default).
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is the PostgreSQL backend.
	DriverPostgres Driver = "postgres"
	// DriverS3 stores one JSON object per document in an S3 / MinIO bucket.
	DriverS3 Driver = "s3"
)

// Store is a domain.DocumentStore that reports which backend it is.
type Store interface {
	domain.DocumentStore
	Driver() Driver
}

// ErrInvalidPath is returned for malformed document or collection paths.
var ErrInvalidPath = errors.New("docstore: invalid path")

// ValidateDocumentPath checks that path addresses a document: an even, non-zero
// number of non-empty segments.
func ValidateDocumentPath(path string) error {
	segs := domain.SplitPath(path)
	if len(segs) == 0 || len(segs)%2 != 0 {
		return fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	return checkSegments(path, segs)
}

// ValidateCollectionPath checks that path addresses a collection: an odd number
// of non-empty segments.
func ValidateCollectionPath(path string) error {
	segs := domain.SplitPath(path)
	if len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	return checkSegments(path, segs)
}

func checkSegments(path string, segs []string) error {
	for _, s := range segs {
		if !ValidID(s) {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// ValidID reports whether id can name a document: non-empty, not "." or "..",
// and free of path separators.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.Contains(id, "/")
}

// CleanPath trims surrounding separators so every backend keys documents alike.
func CleanPath(path string) string {
	return domain.JoinPath(domain.SplitPath(path)...)
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}
