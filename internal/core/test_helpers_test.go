package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"engagement/internal/docstore"
	"engagement/pkg/domain"
)

const (
	ownerEmail  = "owner@example.com"
	adminEmail  = "ada.admin@example.com"
	authorEmail = "ann.lee@example.com"
	memberEmail = "max@example.com"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, level+":"+msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record("d", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record("i", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record("w", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record("e", msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, opts ...Option) (*Service, *captureLogger) {
	t.Helper()
	store, err := docstore.NewMemory()
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	log := &captureLogger{}
	base := []Option{WithLogger(log), WithClock(ClockFunc(func() time.Time { return fixedNow }))}
	return NewService(store, append(base, opts...)...), log
}

func projectData(types ...domain.UpdateType) map[string]any {
	data := map[string]any{
		"name":  "Apollo",
		"teams": []any{"red", "blue"},
		"roles": map[string]any{
			ownerEmail:  "owner",
			adminEmail:  "administrator",
			authorEmail: "author",
			memberEmail: "member",
		},
	}
	if types != nil {
		names := make([]any, len(types))
		for i, ut := range types {
			names[i] = string(ut)
		}
		data["updateTypes"] = names
	}
	return data
}

// seedProject stores a valid project directly, bypassing access rules.
func seedProject(t *testing.T, svc *Service, id string, types ...domain.UpdateType) *domain.Project {
	t.Helper()
	p, err := domain.NewProject(id, projectData(types...))
	if err != nil {
		t.Fatalf("new project: %v", err)
	}
	if err := svc.saveProject(context.Background(), p); err != nil {
		t.Fatalf("save project: %v", err)
	}
	return p
}

// seedUpdate stores a valid update directly, bypassing the reconciler.
func seedUpdate(t *testing.T, svc *Service, projectID, updateID string, data map[string]any) {
	t.Helper()
	kind, _ := data["type"].(string)
	u, err := svc.registry.New(domain.UpdateType(kind), updateID, data)
	if err != nil {
		t.Fatalf("new update: %v", err)
	}
	record, err := u.ToStorageRecord()
	if err != nil {
		t.Fatalf("update record: %v", err)
	}
	path := domain.JoinPath(updatesCollection(projectID), updateID)
	if err := svc.store.Set(context.Background(), path, record); err != nil {
		t.Fatalf("seed update %s: %v", path, err)
	}
}

func insightsPayload(title string) map[string]any {
	return map[string]any{
		"type":       "insights",
		"title":      title,
		"date":       "2024-05-01",
		"authorId":   "u-1",
		"authorName": "Ann Lee",
		"text":       "steady progress",
	}
}

func flowPayload(team, date string) map[string]any {
	return map[string]any{
		"type":  "flow",
		"title": "Flow for " + team,
		"date":  date,
		"team":  team,
		"cycleTimeData": []any{
			map[string]any{"item": "ENG-1", "commitmentDate": "2024-04-20", "completionDate": "2024-04-25"},
		},
	}
}

func listUpdates(t *testing.T, svc *Service, projectID string) []domain.Document {
	t.Helper()
	docs, err := svc.store.Query(context.Background(), domain.Query{Collection: updatesCollection(projectID)})
	if err != nil {
		t.Fatalf("list updates: %v", err)
	}
	return docs
}

func validation(t *testing.T, err error, field string) {
	t.Helper()
	var v *domain.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if field != "" && !v.HasField(field) {
		t.Fatalf("expected problem on %q, got %v", field, v)
	}
}

func mustTokenCount(t *testing.T, svc *Service, want int) {
	t.Helper()
	docs, err := svc.store.Query(context.Background(), domain.Query{Collection: CollectionTokens})
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(docs) != want {
		t.Fatalf("expected %d token records, got %d", want, len(docs))
	}
}

func uidList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("uid-%03d", i)
	}
	return out
}
