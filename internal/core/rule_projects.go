package core

import (
	"context"
	"fmt"
	"strings"

	"engagement/pkg/domain"
)

// NewProjectReadRule lets any authenticated caller read any project document,
// including ones that do not exist.
func NewProjectReadRule() Rule { return projectReadRule{} }

type projectReadRule struct{}

func (projectReadRule) Name() string { return "project_read" }

func (r projectReadRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	shape := shapeOf(req.Segments())
	if (shape != shapeProject && shape != shapeProjects) || req.Operation.IsWrite() {
		return Result{}, nil
	}
	if !req.Caller.Authenticated() {
		return block(r.Name(), req.Path, "authentication required"), nil
	}
	if shape == shapeProjects {
		return block(r.Name(), req.Path, "projects cannot be listed"), nil
	}
	return Result{}, nil
}

// NewProjectCreateRule requires the creator to be listed as an owner and the
// payload to carry exactly the project fields.
func NewProjectCreateRule() Rule { return projectCreateRule{} }

type projectCreateRule struct{}

func (projectCreateRule) Name() string { return "project_create" }

func (r projectCreateRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	if req.Operation != domain.OpCreate || shapeOf(req.Segments()) != shapeProject {
		return Result{}, nil
	}
	if !req.Caller.Authenticated() {
		return block(r.Name(), req.Path, "authentication required"), nil
	}
	res := shapeViolations(r.Name(), req.Path, domain.ProjectSchema, req.Incoming)
	roles := roleTable(req.Incoming)
	if roles[domain.EncodeEmailKey(req.Caller.Email)] != string(domain.RoleOwner) {
		res.Merge(block(r.Name(), req.Path, "creator must be listed as an owner"))
	}
	return res, nil
}

// NewProjectUpdateRule restricts edits to owners and administrators, who may
// neither change the owner entries nor their own entry.
func NewProjectUpdateRule() Rule { return projectUpdateRule{} }

type projectUpdateRule struct{}

func (projectUpdateRule) Name() string { return "project_update" }

func (r projectUpdateRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	if req.Operation != domain.OpUpdate || shapeOf(req.Segments()) != shapeProject {
		return Result{}, nil
	}
	if req.Project == nil || !req.Project.HasRole(req.Caller.Email, domain.RoleOwner, domain.RoleAdministrator) {
		return block(r.Name(), req.Path, "only owners and administrators may edit a project"), nil
	}
	res := shapeViolations(r.Name(), req.Path, domain.ProjectSchema, req.Incoming)
	before, after := roleTable(req.Existing), roleTable(req.Incoming)
	if !sameOwners(before, after) {
		res.Merge(block(r.Name(), req.Path, "owner entries cannot be changed"))
	}
	self := domain.EncodeEmailKey(req.Caller.Email)
	if before[self] != after[self] {
		res.Merge(block(r.Name(), req.Path, "callers cannot change their own role"))
	}
	return res, nil
}

func sameOwners(before, after map[string]string) bool {
	owner := string(domain.RoleOwner)
	for k, v := range before {
		if v == owner && after[k] != owner {
			return false
		}
	}
	for k, v := range after {
		if v == owner && before[k] != owner {
			return false
		}
	}
	return true
}

// NewProjectDeleteRule restricts deletion to owners.
func NewProjectDeleteRule() Rule { return projectDeleteRule{} }

type projectDeleteRule struct{}

func (projectDeleteRule) Name() string { return "project_delete" }

func (r projectDeleteRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	if req.Operation != domain.OpDelete || shapeOf(req.Segments()) != shapeProject {
		return Result{}, nil
	}
	if req.Project == nil || !req.Project.HasRole(req.Caller.Email, domain.RoleOwner) {
		return block(r.Name(), req.Path, "only owners may delete a project"), nil
	}
	return Result{}, nil
}

// shapeViolations reports missing required fields and undeclared fields.
func shapeViolations(rule, path string, schema *domain.Schema, record map[string]any) Result {
	var res Result
	if missing := missingRequired(schema, record); len(missing) > 0 {
		res.Merge(block(rule, path, "missing required fields: "+strings.Join(missing, ", ")))
	}
	if extra := extraFields(schema, record); len(extra) > 0 {
		res.Merge(block(rule, path, fmt.Sprintf("unexpected fields: %s", strings.Join(extra, ", "))))
	}
	return res
}
