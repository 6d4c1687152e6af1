package core

import (
	"context"
	"fmt"
	"testing"

	"engagement/pkg/domain"
)

func TestCreateAndGetProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := domain.Caller{Email: ownerEmail}

	created, err := svc.CreateProject(ctx, owner, map[string]any{
		"name":  "Gemini",
		"roles": map[string]any{ownerEmail: "owner", authorEmail: "author"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID() == "" || created.Name() != "Gemini" {
		t.Fatalf("unexpected project %+v", created.ToObject())
	}

	doc, ok, _ := svc.store.Get(ctx, "projects/"+created.ID())
	if !ok {
		t.Fatalf("project not stored")
	}
	roles, _ := doc.Data["roles"].(map[string]any)
	if roles["ann@@lee@example@@com"] != "author" {
		t.Fatalf("role keys must be encoded in storage, got %+v", roles)
	}

	got, err := svc.GetProject(ctx, domain.Caller{Email: "stranger@example.com"}, created.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.HasRole(authorEmail, domain.RoleAuthor) {
		t.Fatalf("decoded roles lost: %+v", got.Roles())
	}
	if len(got.UpdateTypes()) != len(domain.AllUpdateTypes) {
		t.Fatalf("expected every update type enabled by default, got %v", got.UpdateTypes())
	}
}

func TestCreateProjectDenied(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := []struct {
		name   string
		caller domain.Caller
		raw    map[string]any
	}{
		{"anonymous", domain.Caller{}, map[string]any{"name": "G", "roles": map[string]any{ownerEmail: "owner"}}},
		{"not an owner", domain.Caller{Email: memberEmail}, map[string]any{"name": "G", "roles": map[string]any{ownerEmail: "owner"}}},
		{"extra field", domain.Caller{Email: ownerEmail}, map[string]any{"name": "G", "color": "red", "roles": map[string]any{ownerEmail: "owner"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateProject(ctx, tc.caller, tc.raw); !domain.IsPermission(err) {
				t.Fatalf("expected permission error, got %v", err)
			}
		})
	}
	_, err := svc.CreateProject(ctx, domain.Caller{Email: ownerEmail}, map[string]any{
		"name":  "G",
		"roles": map[string]any{ownerEmail: "owner", "not-an-email": "author"},
	})
	validation(t, err, "roles")
}

func TestGetProjectRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, svc, "p1")
	if _, err := svc.GetProject(ctx, domain.Caller{}, "p1"); !domain.IsPermission(err) {
		t.Fatalf("anonymous read must be denied, got %v", err)
	}
	if _, err := svc.GetProject(ctx, domain.Caller{}, "missing"); !domain.IsPermission(err) {
		t.Fatalf("anonymous read of a missing project must be denied, got %v", err)
	}
	if _, err := svc.GetProject(ctx, domain.Caller{Email: memberEmail}, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetProjectReturnsDegradedRecords(t *testing.T) {
	svc, log := newTestService(t)
	ctx := context.Background()
	if err := svc.store.Set(ctx, "projects/broken", map[string]any{"name": "Broken", "roles": map[string]any{}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, err := svc.GetProject(ctx, domain.Caller{Email: memberEmail}, "broken")
	if err != nil {
		t.Fatalf("degraded project must still load: %v", err)
	}
	if !p.Degraded() || p.Name() != "Broken" {
		t.Fatalf("expected degraded project carrying its name, got degraded=%v name=%q", p.Degraded(), p.Name())
	}
	if !log.has("w:degraded project record") {
		t.Fatalf("expected degradation to be logged, got %v", log.calls)
	}
}

func TestUpdateProjectRevokesRemovedTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	project := seedProject(t, svc, "p1")
	keep, _ := svc.IssueToken(ctx, project, domain.RoleAuthor, "keep")
	drop, _ := svc.IssueToken(ctx, project, domain.RoleAuthor, "drop")

	var kept []any
	for _, info := range project.Tokens() {
		if info.UID == keep.UID {
			kept = append(kept, map[string]any{"uid": info.UID, "role": string(info.Role), "name": info.Name, "creationDate": info.CreationDate})
		}
	}
	updated, err := svc.UpdateProject(ctx, domain.Caller{Email: adminEmail}, "p1", map[string]any{
		"description": "now with fewer tokens",
		"tokens":      kept,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description() != "now with fewer tokens" || len(updated.Tokens()) != 1 {
		t.Fatalf("unexpected project %+v", updated.ToObject())
	}
	if rec, _ := svc.ValidateToken(ctx, drop.Token, domain.EditorRoles...); rec != nil {
		t.Fatalf("dropped token still valid")
	}
	if _, ok, _ := svc.store.Get(ctx, "_api_tokens/"+drop.Token); ok {
		t.Fatalf("dropped token record must be deleted")
	}
	if rec, _ := svc.ValidateToken(ctx, keep.Token, domain.EditorRoles...); rec == nil {
		t.Fatalf("kept token must stay valid")
	}
}

func TestUpdateProjectRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, svc, "p1")

	if _, err := svc.UpdateProject(ctx, domain.Caller{Email: authorEmail}, "p1", map[string]any{"name": "X"}); !domain.IsPermission(err) {
		t.Fatalf("author edit must be denied, got %v", err)
	}
	if _, err := svc.UpdateProject(ctx, domain.Caller{Email: adminEmail}, "p1", map[string]any{
		"roles": map[string]any{ownerEmail: "member", adminEmail: "administrator", "new.owner@example.com": "owner"},
	}); !domain.IsPermission(err) {
		t.Fatalf("owner change must be denied, got %v", err)
	}
	if _, err := svc.UpdateProject(ctx, domain.Caller{Email: adminEmail}, "p1", map[string]any{"name": ""}); !domain.IsValidation(err) {
		t.Fatalf("empty name must fail validation, got %v", err)
	}
	if _, err := svc.UpdateProject(ctx, domain.Caller{Email: ownerEmail}, "ghost", map[string]any{"name": "X"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	for _, id := range []string{"p1", "ghost"} {
		if _, err := svc.UpdateProject(ctx, domain.Caller{}, id, map[string]any{"name": "X"}); !domain.IsPermission(err) {
			t.Fatalf("anonymous edit of %s must be denied, got %v", id, err)
		}
	}
	p, _, _ := svc.loadProject(ctx, "p1")
	if p.Name() != "Apollo" {
		t.Fatalf("failed edits must not persist, name=%q", p.Name())
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	svc, _ := newTestService(t, WithCleanupBatchSize(4))
	ctx := context.Background()
	project := seedProject(t, svc, "p1")
	seedProject(t, svc, "p2")
	for i := 0; i < 10; i++ {
		seedUpdate(t, svc, "p1", fmt.Sprintf("u%d", i), insightsPayload("x"))
	}
	seedUpdate(t, svc, "p2", "other", insightsPayload("y"))
	issued, _ := svc.IssueToken(ctx, project, domain.RoleAuthor, "ci")

	if _, err := svc.DeleteProject(ctx, domain.Caller{Email: adminEmail}, "p1"); !domain.IsPermission(err) {
		t.Fatalf("admin delete must be denied, got %v", err)
	}
	n, err := svc.DeleteProject(ctx, domain.Caller{Email: ownerEmail}, "p1")
	if err != nil || n != 10 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	if docs := listUpdates(t, svc, "p1"); len(docs) != 0 {
		t.Fatalf("updates survived cascade: %d", len(docs))
	}
	if docs := listUpdates(t, svc, "p2"); len(docs) != 1 {
		t.Fatalf("sibling project touched: %d", len(docs))
	}
	if _, ok, _ := svc.store.Get(ctx, "_api_tokens/"+issued.Token); ok {
		t.Fatalf("project tokens survived delete")
	}
	if _, err := svc.DeleteProject(ctx, domain.Caller{Email: ownerEmail}, "p1"); !domain.IsNotFound(err) {
		t.Fatalf("second delete: %v", err)
	}
	for _, id := range []string{"p1", "p2"} {
		if _, err := svc.DeleteProject(ctx, domain.Caller{}, id); !domain.IsPermission(err) {
			t.Fatalf("anonymous delete of %s must be denied, got %v", id, err)
		}
	}
}

func TestOnProjectWrittenCreateIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	p := seedProject(t, svc, "p1")
	if err := svc.OnProjectWritten(context.Background(), "p1", nil, p); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

func TestUpdatesReadAndDelete(t *testing.T) {
	svc, log := newTestService(t)
	ctx := context.Background()
	seedProject(t, svc, "p1")
	older := insightsPayload("Older")
	older["date"] = "2024-04-01"
	seedUpdate(t, svc, "p1", "a", older)
	seedUpdate(t, svc, "p1", "b", insightsPayload("Newer"))
	if err := svc.store.Set(ctx, "projects/p1/updates/c", map[string]any{"type": "poll", "title": "Retired", "date": "2024-03-01T00:00:00Z"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	member := domain.Caller{Email: memberEmail}
	list, err := svc.ListUpdates(ctx, member, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID() != "b" || list[1].ID() != "a" || list[2].ID() != "c" {
		t.Fatalf("expected newest first, got %d entries", len(list))
	}
	if !list[2].Degraded() || list[2].Type() != "poll" {
		t.Fatalf("unknown type must load degraded")
	}
	if !log.has("w:degraded update record") {
		t.Fatalf("expected degraded update to be logged")
	}
	if path, _ := list[0].Path(); path != "projects/p1/updates/b" {
		t.Fatalf("updates must carry the project as parent, path=%q", path)
	}

	u, err := svc.GetUpdate(ctx, member, "p1", "a")
	if err != nil || u.Title() != "Older" {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.GetUpdate(ctx, member, "p1", "zzz"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.ListUpdates(ctx, domain.Caller{Email: "stranger@example.com"}, "p1"); !domain.IsPermission(err) {
		t.Fatalf("stranger list must be denied, got %v", err)
	}
	if _, err := svc.ListUpdates(ctx, domain.Caller{}, "ghost"); !domain.IsPermission(err) {
		t.Fatalf("anonymous list of a missing project must be denied, got %v", err)
	}
	if _, err := svc.ListUpdates(ctx, member, "ghost"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := svc.DeleteUpdate(ctx, member, "p1", "a"); !domain.IsPermission(err) {
		t.Fatalf("member delete must be denied, got %v", err)
	}
	if err := svc.DeleteUpdate(ctx, domain.Caller{Email: authorEmail}, "p1", "a"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if err := svc.DeleteUpdate(ctx, domain.Caller{Email: authorEmail}, "p1", "a"); !domain.IsNotFound(err) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCreateUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, svc, "p1", domain.UpdateInsights)
	author := domain.Caller{Email: authorEmail}

	u, err := svc.CreateUpdate(ctx, author, "p1", insightsPayload("Week 18"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID() == "" || u.Title() != "Week 18" {
		t.Fatalf("unexpected update %+v", u.ToObject())
	}
	doc, ok, _ := svc.store.Get(ctx, "projects/p1/updates/"+u.ID())
	if !ok || doc.Data["type"] != "insights" || doc.Data["date"] != "2024-05-01T00:00:00Z" {
		t.Fatalf("unexpected stored record ok=%v %+v", ok, doc.Data)
	}

	missingTitle := insightsPayload("x")
	delete(missingTitle, "title")
	extra := insightsPayload("x")
	extra["color"] = "red"
	denied := []struct {
		name   string
		caller domain.Caller
		raw    map[string]any
	}{
		{"member", domain.Caller{Email: memberEmail}, insightsPayload("x")},
		{"stranger", domain.Caller{Email: "stranger@example.com"}, insightsPayload("x")},
		{"unknown type", author, map[string]any{"type": "poll", "title": "x", "date": "2024-05-01"}},
		{"missing required", author, missingTitle},
		{"undeclared field", author, extra},
	}
	for _, tc := range denied {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateUpdate(ctx, tc.caller, "p1", tc.raw); !domain.IsPermission(err) {
				t.Fatalf("expected permission error, got %v", err)
			}
		})
	}

	_, err = svc.CreateUpdate(ctx, author, "p1", flowPayload("red", "2024-05-01"))
	validation(t, err, "type")
	if _, err := svc.CreateUpdate(ctx, domain.Caller{}, "ghost", insightsPayload("x")); !domain.IsPermission(err) {
		t.Fatalf("anonymous create on a missing project must be denied, got %v", err)
	}
	if _, err := svc.CreateUpdate(ctx, author, "ghost", insightsPayload("x")); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if docs := listUpdates(t, svc, "p1"); len(docs) != 1 {
		t.Fatalf("rejected creates must not write, got %d docs", len(docs))
	}
}

func TestEditUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, svc, "p1")
	seedUpdate(t, svc, "p1", "u1", insightsPayload("Original"))
	admin := domain.Caller{Email: adminEmail}

	u, err := svc.EditUpdate(ctx, admin, "p1", "u1", map[string]any{"summary": "short"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if u.ID() != "u1" || u.Title() != "Original" {
		t.Fatalf("unexpected update %+v", u.ToObject())
	}
	doc, _, _ := svc.store.Get(ctx, "projects/p1/updates/u1")
	if doc.Data["summary"] != "short" || doc.Data["text"] != "steady progress" {
		t.Fatalf("partial edit lost fields: %+v", doc.Data)
	}

	if _, err := svc.EditUpdate(ctx, domain.Caller{Email: memberEmail}, "p1", "u1", map[string]any{"title": "X"}); !domain.IsPermission(err) {
		t.Fatalf("member edit must be denied, got %v", err)
	}
	if _, err := svc.EditUpdate(ctx, admin, "p1", "u1", map[string]any{"color": "red"}); !domain.IsPermission(err) {
		t.Fatalf("undeclared field must be denied, got %v", err)
	}
	if _, err := svc.EditUpdate(ctx, admin, "p1", "u1", map[string]any{"type": "goals"}); err == nil {
		t.Fatalf("type change must be rejected")
	}
	if _, err := svc.EditUpdate(ctx, admin, "p1", "zzz", map[string]any{"title": "X"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.EditUpdate(ctx, domain.Caller{}, "ghost", "u1", map[string]any{"title": "X"}); !domain.IsPermission(err) {
		t.Fatalf("anonymous edit on a missing project must be denied, got %v", err)
	}
	doc, _, _ = svc.store.Get(ctx, "projects/p1/updates/u1")
	if doc.Data["title"] != "Original" || doc.Data["type"] != "insights" {
		t.Fatalf("rejected edits must not persist, got %+v", doc.Data)
	}
}

func TestIssueProjectToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedProject(t, svc, "p1")

	issued, err := svc.IssueProjectToken(ctx, domain.Caller{Email: ownerEmail}, "p1", domain.RoleAuthor, "ci")
	if err != nil || issued.Token == "" {
		t.Fatalf("owner issue: %+v %v", issued, err)
	}
	if _, err := svc.IssueProjectToken(ctx, domain.Caller{Email: adminEmail}, "p1", domain.RoleAuthor, "ci"); !domain.IsPermission(err) {
		t.Fatalf("admin issue must be denied, got %v", err)
	}
	if _, err := svc.IssueProjectToken(ctx, domain.Caller{}, "p1", domain.RoleAuthor, "ci"); !domain.IsPermission(err) {
		t.Fatalf("anonymous issue must be denied, got %v", err)
	}
	if _, err := svc.IssueProjectToken(ctx, domain.Caller{Email: ownerEmail}, "ghost", domain.RoleAuthor, "ci"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
