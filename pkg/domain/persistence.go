package domain

import "context"

// Document is a stored record addressed by a slash-separated path.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// FilterOp is a query comparison.
type FilterOp string

// Supported filter operators.
const (
	FilterEqual FilterOp = "=="
	FilterIn    FilterOp = "in"
)

// Filter restricts a query to documents whose field matches Value. For FilterIn,
// Value is a list and any element may match.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query selects the direct children of a collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit caps the result size; zero means unlimited.
	Limit int
}

// Where appends an equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter{}, q.Filters...), Filter{Field: field, Op: FilterEqual, Value: value})
	return q
}

// WhereIn appends a membership filter.
func (q Query) WhereIn(field string, values []any) Query {
	q.Filters = append(append([]Filter{}, q.Filters...), Filter{Field: field, Op: FilterIn, Value: values})
	return q
}

// DocumentStore is the persistence contract every backend implements. Values are
// JSON-normalised on write: timestamps come back as RFC 3339 strings.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Document, bool, error)
	// Create stores data under a generated id in collection.
	Create(ctx context.Context, collection string, data map[string]any) (Document, error)
	// Set creates or replaces the document at path.
	Set(ctx context.Context, path string, data map[string]any) error
	// Delete removes the document at path; deleting a missing document is a no-op.
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// DeleteBatch removes paths as one commit where the backend supports it.
	DeleteBatch(ctx context.Context, paths []string) error
	Close() error
}

// CollectionOf returns the collection portion of a document path.
func CollectionOf(path string) string {
	segs := SplitPath(path)
	if len(segs) < 2 {
		return ""
	}
	return JoinPath(segs[:len(segs)-1]...)
}

// IDOf returns the final segment of a document path.
func IDOf(path string) string {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
