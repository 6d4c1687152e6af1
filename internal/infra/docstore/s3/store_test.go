package s3

import (
	"context"
	"fmt"
	"testing"

	"engagement/internal/docstore/conformance"
	"engagement/pkg/domain"
)

func TestConformance(t *testing.T) {
	conformance.Run(t, func(t *testing.T) domain.DocumentStore {
		return NewMockForTests("")
	})
}

func TestConformanceWithPrefix(t *testing.T) {
	conformance.Run(t, func(t *testing.T) domain.DocumentStore {
		return NewMockForTests("/tenant-a/")
	})
}

func TestQueryFollowsPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests("engagement")
	for i := 0; i < 7; i++ {
		if err := s.Set(ctx, fmt.Sprintf("projects/p1/updates/u%d", i), map[string]any{"n": i}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	docs, err := s.Query(ctx, domain.Query{Collection: "projects/p1/updates"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 7 {
		t.Fatalf("expected 7 documents across pages, got %d", len(docs))
	}
}

func TestKeyLayout(t *testing.T) {
	s := NewMockForTests("engagement/")
	if got := s.key("/projects/p1/"); got != "engagement/projects/p1.json" {
		t.Fatalf("unexpected key %q", got)
	}
	if normalizePrefix("") != "" || normalizePrefix("/a/b/") != "a/b/" {
		t.Fatalf("unexpected prefix normalisation")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
