// Package conformance holds the behaviour every document store backend must share.
// Backend tests call Run with a constructor for a fresh, empty store.
package conformance

import (
	"context"
	"errors"
	"testing"
	"time"

	"engagement/internal/docstore/core"
	"engagement/pkg/domain"
)

// Run executes the shared suite against stores produced by open.
func Run(t *testing.T, open func(t *testing.T) domain.DocumentStore) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s domain.DocumentStore)
	}{
		{"GetMissing", testGetMissing},
		{"SetGetNormalises", testSetGetNormalises},
		{"SetReplaces", testSetReplaces},
		{"CreateGeneratesID", testCreateGeneratesID},
		{"DeleteIsIdempotent", testDeleteIsIdempotent},
		{"QueryDirectChildrenOnly", testQueryDirectChildrenOnly},
		{"QueryFilters", testQueryFilters},
		{"QueryOrderAndLimit", testQueryOrderAndLimit},
		{"DeleteBatch", testDeleteBatch},
		{"InvalidPaths", testInvalidPaths},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testGetMissing(t *testing.T, s domain.DocumentStore) {
	_, ok, err := s.Get(context.Background(), "projects/missing")
	if err != nil || ok {
		t.Fatalf("expected missing document, ok=%v err=%v", ok, err)
	}
}

func testSetGetNormalises(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	when := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := s.Set(ctx, "projects/p1", map[string]any{
		"name":  "Apollo",
		"when":  when,
		"teams": []string{"red"},
		"n":     3,
		"roles": map[string]string{"a@@b@example@@com": "owner"},
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, ok, err := s.Get(ctx, "/projects/p1/")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if doc.ID != "p1" || doc.Path != "projects/p1" {
		t.Fatalf("unexpected identity %q %q", doc.ID, doc.Path)
	}
	if doc.Data["when"] != "2024-05-01T12:30:00Z" {
		t.Fatalf("timestamps must be stored as RFC 3339 strings, got %#v", doc.Data["when"])
	}
	if doc.Data["n"] != float64(3) {
		t.Fatalf("numbers must be JSON-normalised, got %#v", doc.Data["n"])
	}
	teams, _ := doc.Data["teams"].([]any)
	if len(teams) != 1 || teams[0] != "red" {
		t.Fatalf("unexpected teams %#v", doc.Data["teams"])
	}
	roles, _ := doc.Data["roles"].(map[string]any)
	if roles["a@@b@example@@com"] != "owner" {
		t.Fatalf("unexpected roles %#v", doc.Data["roles"])
	}
}

func testSetReplaces(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustSet(t, s, "projects/p1", map[string]any{"a": "1", "b": "2"})
	mustSet(t, s, "projects/p1", map[string]any{"a": "3"})
	doc, _, _ := s.Get(ctx, "projects/p1")
	if doc.Data["a"] != "3" {
		t.Fatalf("expected replacement, got %#v", doc.Data)
	}
	if _, ok := doc.Data["b"]; ok {
		t.Fatalf("set must replace the whole document, got %#v", doc.Data)
	}
}

func testCreateGeneratesID(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	a, err := s.Create(ctx, "projects/p1/updates", map[string]any{"title": "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := s.Create(ctx, "projects/p1/updates", map[string]any{"title": "b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", a.ID, b.ID)
	}
	if a.Path != "projects/p1/updates/"+a.ID {
		t.Fatalf("unexpected path %q", a.Path)
	}
	got, ok, err := s.Get(ctx, a.Path)
	if err != nil || !ok || got.Data["title"] != "a" {
		t.Fatalf("created document not readable: %+v ok=%v err=%v", got, ok, err)
	}
}

func testDeleteIsIdempotent(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustSet(t, s, "projects/p1", map[string]any{"a": "1"})
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, "projects/p1"); err != nil {
			t.Fatalf("delete #%d: %v", i, err)
		}
	}
	if _, ok, _ := s.Get(ctx, "projects/p1"); ok {
		t.Fatalf("document survived delete")
	}
}

func testQueryDirectChildrenOnly(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustSet(t, s, "projects/p1", map[string]any{"name": "one"})
	mustSet(t, s, "projects/p2", map[string]any{"name": "two"})
	mustSet(t, s, "projects/p1/updates/u1", map[string]any{"title": "nested"})
	mustSet(t, s, "projectsx/p3", map[string]any{"name": "other"})

	docs, err := s.Query(ctx, domain.Query{Collection: "projects"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "p1" || docs[1].ID != "p2" {
		t.Fatalf("expected p1,p2 got %+v", docs)
	}
	nested, err := s.Query(ctx, domain.Query{Collection: "projects/p1/updates"})
	if err != nil || len(nested) != 1 || nested[0].Path != "projects/p1/updates/u1" {
		t.Fatalf("unexpected nested result %+v (%v)", nested, err)
	}
	empty, err := s.Query(ctx, domain.Query{Collection: "projects/none/updates"})
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown collection must be empty, got %+v (%v)", empty, err)
	}
}

func testQueryFilters(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustSet(t, s, "_api_tokens/t1", map[string]any{"uid": "a", "projectId": "p1"})
	mustSet(t, s, "_api_tokens/t2", map[string]any{"uid": "b", "projectId": "p1"})
	mustSet(t, s, "_api_tokens/t3", map[string]any{"uid": "c", "projectId": "p2"})

	eq, err := s.Query(ctx, domain.Query{Collection: "_api_tokens"}.Where("projectId", "p1"))
	if err != nil || len(eq) != 2 {
		t.Fatalf("equality filter: %+v (%v)", eq, err)
	}
	in, err := s.Query(ctx, domain.Query{Collection: "_api_tokens"}.WhereIn("uid", []any{"a", "c", "zzz"}))
	if err != nil || len(in) != 2 || in[0].ID != "t1" || in[1].ID != "t3" {
		t.Fatalf("in filter: %+v (%v)", in, err)
	}
	both, err := s.Query(ctx, domain.Query{Collection: "_api_tokens"}.Where("projectId", "p1").WhereIn("uid", []any{"b"}))
	if err != nil || len(both) != 1 || both[0].ID != "t2" {
		t.Fatalf("combined filters: %+v (%v)", both, err)
	}
	none, err := s.Query(ctx, domain.Query{Collection: "_api_tokens"}.Where("missing", "x"))
	if err != nil || len(none) != 0 {
		t.Fatalf("filter on missing field must match nothing: %+v (%v)", none, err)
	}
}

func testQueryOrderAndLimit(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustSet(t, s, "projects/p1/updates/a", map[string]any{"team": "red", "date": base.Add(48 * time.Hour)})
	mustSet(t, s, "projects/p1/updates/b", map[string]any{"team": "red", "date": base.Add(72 * time.Hour)})
	mustSet(t, s, "projects/p1/updates/c", map[string]any{"team": "red", "date": base})
	mustSet(t, s, "projects/p1/updates/d", map[string]any{"team": "blue", "date": base.Add(96 * time.Hour)})

	q := domain.Query{Collection: "projects/p1/updates", OrderBy: "date", Descending: true, Limit: 1}.Where("team", "red")
	docs, err := s.Query(ctx, q)
	if err != nil || len(docs) != 1 || docs[0].ID != "b" {
		t.Fatalf("expected newest red update b, got %+v (%v)", docs, err)
	}
	asc, err := s.Query(ctx, domain.Query{Collection: "projects/p1/updates", OrderBy: "date"})
	if err != nil || len(asc) != 4 {
		t.Fatalf("ascending: %+v (%v)", asc, err)
	}
	want := []string{"c", "a", "b", "d"}
	for i, id := range want {
		if asc[i].ID != id {
			t.Fatalf("ascending order mismatch at %d: got %s want %s", i, asc[i].ID, id)
		}
	}
	limited, err := s.Query(ctx, domain.Query{Collection: "projects/p1/updates", Limit: 3})
	if err != nil || len(limited) != 3 {
		t.Fatalf("limit: %+v (%v)", limited, err)
	}
}

func testDeleteBatch(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustSet(t, s, "projects/p1/updates/a", map[string]any{"x": "1"})
	mustSet(t, s, "projects/p1/updates/b", map[string]any{"x": "2"})
	mustSet(t, s, "projects/p1/updates/c", map[string]any{"x": "3"})
	err := s.DeleteBatch(ctx, []string{"projects/p1/updates/a", "projects/p1/updates/b", "projects/p1/updates/gone"})
	if err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	docs, _ := s.Query(ctx, domain.Query{Collection: "projects/p1/updates"})
	if len(docs) != 1 || docs[0].ID != "c" {
		t.Fatalf("expected only c to remain, got %+v", docs)
	}
	if err := s.DeleteBatch(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func testInvalidPaths(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "projects"); !errors.Is(err, core.ErrInvalidPath) {
		t.Fatalf("collection path accepted as document: %v", err)
	}
	if err := s.Set(ctx, "projects/p1/updates", map[string]any{}); !errors.Is(err, core.ErrInvalidPath) {
		t.Fatalf("collection path accepted by set: %v", err)
	}
	if _, err := s.Query(ctx, domain.Query{Collection: "projects/p1"}); !errors.Is(err, core.ErrInvalidPath) {
		t.Fatalf("document path accepted as collection: %v", err)
	}
	if _, err := s.Create(ctx, "", map[string]any{}); !errors.Is(err, core.ErrInvalidPath) {
		t.Fatalf("empty collection accepted: %v", err)
	}
}

func mustSet(t *testing.T, s domain.DocumentStore, path string, data map[string]any) {
	t.Helper()
	if err := s.Set(context.Background(), path, data); err != nil {
		t.Fatalf("set %s: %v", path, err)
	}
}
