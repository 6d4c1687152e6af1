package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"engagement/pkg/domain"
)

// CreateProject stores a new project on behalf of caller, who must list
// themselves as an owner.
func (s *Service) CreateProject(ctx context.Context, caller Caller, raw map[string]any) (*domain.Project, error) {
	var created *domain.Project
	err := s.run(ctx, "CreateProject", func(ctx context.Context) error {
		id := uuid.NewString()
		path := domain.JoinPath(CollectionProjects, id)
		if err := s.guard(ctx, AccessRequest{
			Caller:    caller,
			Operation: domain.OpCreate,
			Path:      path,
			Incoming:  domain.EncodeRoleKeys(raw),
		}); err != nil {
			return err
		}
		p, err := domain.NewProject(id, raw)
		if err != nil {
			return err
		}
		if err := s.saveProject(ctx, p); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		created = p
		return nil
	})
	return created, err
}

// GetProject reads a project. Degraded records are returned with Err set.
func (s *Service) GetProject(ctx context.Context, caller Caller, id string) (*domain.Project, error) {
	var project *domain.Project
	err := s.run(ctx, "GetProject", func(ctx context.Context) error {
		if err := s.guard(ctx, AccessRequest{
			Caller:    caller,
			Operation: domain.OpRead,
			Path:      domain.JoinPath(CollectionProjects, id),
		}); err != nil {
			return err
		}
		p, ok, err := s.loadProject(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "project", ID: id}
		}
		project = p
		return nil
	})
	return project, err
}

// UpdateProject applies a partial edit and revokes tokens the edit removed.
// The edit is a read-modify-write without a concurrency check: concurrent
// edits to roles or tokens are last-write-wins.
func (s *Service) UpdateProject(ctx context.Context, caller Caller, id string, partial map[string]any) (*domain.Project, error) {
	var updated *domain.Project
	err := s.run(ctx, "UpdateProject", func(ctx context.Context) error {
		if !caller.Authenticated() {
			return &domain.PermissionError{Reason: "authentication required"}
		}
		path := domain.JoinPath(CollectionProjects, id)
		doc, ok, err := s.store.Get(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "project", ID: id}
		}
		before := domain.ProjectFromStorageRecord(doc.ID, doc.Data)
		incoming := make(map[string]any, len(doc.Data)+len(partial))
		for k, v := range doc.Data {
			incoming[k] = v
		}
		for k, v := range domain.EncodeRoleKeys(partial) {
			incoming[k] = v
		}
		if err := s.guard(ctx, AccessRequest{
			Caller:    caller,
			Operation: domain.OpUpdate,
			Path:      path,
			Existing:  doc.Data,
			Incoming:  incoming,
			Project:   before,
		}); err != nil {
			return err
		}
		after := domain.ProjectFromStorageRecord(doc.ID, doc.Data)
		if err := after.Update(partial); err != nil {
			return err
		}
		if err := s.saveProject(ctx, after); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		if err := s.OnProjectWritten(ctx, id, before, after); err != nil {
			return err
		}
		updated = after
		return nil
	})
	return updated, err
}

// DeleteProject removes a project, then its updates and tokens. It returns the
// number of updates deleted.
func (s *Service) DeleteProject(ctx context.Context, caller Caller, id string) (int, error) {
	var deleted int
	err := s.run(ctx, "DeleteProject", func(ctx context.Context) error {
		if !caller.Authenticated() {
			return &domain.PermissionError{Reason: "authentication required"}
		}
		project, ok, err := s.loadProject(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "project", ID: id}
		}
		path := domain.JoinPath(CollectionProjects, id)
		if err := s.guard(ctx, AccessRequest{
			Caller:    caller,
			Operation: domain.OpDelete,
			Path:      path,
			Project:   project,
		}); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		n, err := s.onProjectDeleted(ctx, id)
		deleted = n
		return err
	})
	return deleted, err
}

// ListUpdates returns the project's updates, newest first.
func (s *Service) ListUpdates(ctx context.Context, caller Caller, projectID string) ([]*domain.Update, error) {
	var out []*domain.Update
	err := s.run(ctx, "ListUpdates", func(ctx context.Context) error {
		project, err := s.projectForUpdates(ctx, caller, projectID, domain.OpList, updatesCollection(projectID))
		if err != nil {
			return err
		}
		docs, err := s.store.Query(ctx, domain.Query{
			Collection: updatesCollection(projectID),
			OrderBy:    "date",
			Descending: true,
		})
		if err != nil {
			return fmt.Errorf("list updates: %w", err)
		}
		out = make([]*domain.Update, 0, len(docs))
		for _, d := range docs {
			out = append(out, s.loadUpdate(d, project))
		}
		return nil
	})
	return out, err
}

// GetUpdate reads one update.
func (s *Service) GetUpdate(ctx context.Context, caller Caller, projectID, updateID string) (*domain.Update, error) {
	var out *domain.Update
	err := s.run(ctx, "GetUpdate", func(ctx context.Context) error {
		path := domain.JoinPath(updatesCollection(projectID), updateID)
		project, err := s.projectForUpdates(ctx, caller, projectID, domain.OpRead, path)
		if err != nil {
			return err
		}
		doc, ok, err := s.store.Get(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "update", ID: updateID}
		}
		out = s.loadUpdate(doc, project)
		return nil
	})
	return out, err
}

// CreateUpdate stores a new update from raw on behalf of caller, who must be an
// editor of the project. The update type must be enabled on the project.
func (s *Service) CreateUpdate(ctx context.Context, caller Caller, projectID string, raw map[string]any) (*domain.Update, error) {
	var created *domain.Update
	err := s.run(ctx, "CreateUpdate", func(ctx context.Context) error {
		project, err := s.callerProject(ctx, caller, projectID)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		path := domain.JoinPath(updatesCollection(projectID), id)
		if err := s.guard(ctx, AccessRequest{
			Caller:    caller,
			Operation: domain.OpCreate,
			Path:      path,
			Incoming:  raw,
			Project:   project,
		}); err != nil {
			return err
		}
		kind, _ := raw["type"].(string)
		if !project.UpdateTypeEnabled(domain.UpdateType(kind)) {
			return domain.NewValidationError("update", "type",
				fmt.Sprintf("update type %q is not enabled for project %s", kind, projectID))
		}
		u, err := s.registry.New(domain.UpdateType(kind), id, raw)
		if err != nil {
			return err
		}
		u.SetParent(project)
		record, err := u.ToStorageRecord()
		if err != nil {
			return err
		}
		if err := s.store.Set(ctx, path, record); err != nil {
			return fmt.Errorf("create update: %w", err)
		}
		created = u
		return nil
	})
	return created, err
}

// EditUpdate applies a partial edit to one update. The update's type cannot
// change.
func (s *Service) EditUpdate(ctx context.Context, caller Caller, projectID, updateID string, partial map[string]any) (*domain.Update, error) {
	var edited *domain.Update
	err := s.run(ctx, "EditUpdate", func(ctx context.Context) error {
		project, err := s.callerProject(ctx, caller, projectID)
		if err != nil {
			return err
		}
		path := domain.JoinPath(updatesCollection(projectID), updateID)
		doc, ok, err := s.store.Get(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "update", ID: updateID}
		}
		incoming := make(map[string]any, len(doc.Data)+len(partial))
		for k, v := range doc.Data {
			incoming[k] = v
		}
		for k, v := range partial {
			incoming[k] = v
		}
		if err := s.guard(ctx, AccessRequest{
			Caller:    caller,
			Operation: domain.OpUpdate,
			Path:      path,
			Existing:  doc.Data,
			Incoming:  incoming,
			Project:   project,
		}); err != nil {
			return err
		}
		u := s.loadUpdate(doc, project)
		if err := u.Update(partial); err != nil {
			return err
		}
		record, err := u.ToStorageRecord()
		if err != nil {
			return err
		}
		if err := s.store.Set(ctx, path, record); err != nil {
			return fmt.Errorf("edit update: %w", err)
		}
		edited = u
		return nil
	})
	return edited, err
}

// DeleteUpdate removes one update.
func (s *Service) DeleteUpdate(ctx context.Context, caller Caller, projectID, updateID string) error {
	return s.run(ctx, "DeleteUpdate", func(ctx context.Context) error {
		path := domain.JoinPath(updatesCollection(projectID), updateID)
		if _, err := s.projectForUpdates(ctx, caller, projectID, domain.OpDelete, path); err != nil {
			return err
		}
		_, ok, err := s.store.Get(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: "update", ID: updateID}
		}
		return s.store.Delete(ctx, path)
	})
}

func (s *Service) projectForUpdates(ctx context.Context, caller Caller, projectID string, op domain.Operation, path string) (*domain.Project, error) {
	project, err := s.callerProject(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(ctx, AccessRequest{Caller: caller, Operation: op, Path: path, Project: project}); err != nil {
		return nil, err
	}
	return project, nil
}

// callerProject loads a project for caller. Anonymous callers are denied before
// they can learn whether the project exists.
func (s *Service) callerProject(ctx context.Context, caller Caller, projectID string) (*domain.Project, error) {
	project, ok, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if !caller.Authenticated() {
			return nil, &domain.PermissionError{Reason: "authentication required"}
		}
		return nil, domain.NotFoundError{Entity: "project", ID: projectID}
	}
	return project, nil
}

// IssueProjectToken issues a token on behalf of caller, who must own the project.
func (s *Service) IssueProjectToken(ctx context.Context, caller Caller, projectID string, role domain.Role, name string) (IssuedToken, error) {
	if !caller.Authenticated() {
		return IssuedToken{}, &domain.PermissionError{Reason: "authentication required"}
	}
	project, err := s.VerifyAndGetProject(ctx, projectID, caller.Email, domain.RoleOwner)
	if err != nil {
		return IssuedToken{}, err
	}
	return s.IssueToken(ctx, project, role, name)
}

// PostUpdate authenticates token for an editor role and pushes payload to the
// token's project.
func (s *Service) PostUpdate(ctx context.Context, token string, payload map[string]any, alwaysCreate bool) (PushResult, error) {
	rec, err := s.ValidateToken(ctx, token, domain.EditorRoles...)
	if err != nil {
		return PushResult{}, err
	}
	if rec == nil {
		return PushResult{}, &domain.PermissionError{Reason: "invalid or expired token"}
	}
	return s.PushUpdate(ctx, rec.ProjectID, payload, alwaysCreate)
}
