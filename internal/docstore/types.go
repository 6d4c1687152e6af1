// Package docstore re-exports the document store abstractions and selects a
// backend from configuration.
package docstore

import (
	"engagement/internal/docstore/core"
)

type (
	// Driver identifies a document store backend.
	Driver = core.Driver
	// Store is the interface every backend implements.
	Store = core.Store
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
	DriverS3       = core.DriverS3
)

// ErrInvalidPath marks malformed document or collection paths.
var ErrInvalidPath = core.ErrInvalidPath

// ValidID reports whether id can name a document.
func ValidID(id string) bool { return core.ValidID(id) }
