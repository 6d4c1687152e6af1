package core

import (
	"context"
	"fmt"

	"engagement/pkg/domain"
)

// NewUpdateReadRule lets any project member read its updates.
func NewUpdateReadRule() Rule { return updateReadRule{} }

type updateReadRule struct{}

func (updateReadRule) Name() string { return "update_read" }

func (r updateReadRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	shape := shapeOf(req.Segments())
	if (shape != shapeUpdates && shape != shapeUpdate) || req.Operation.IsWrite() {
		return Result{}, nil
	}
	if req.Project == nil || !req.Project.HasRole(req.Caller.Email, domain.AllRoles...) {
		return block(r.Name(), req.Path, "caller has no role on the project"), nil
	}
	return Result{}, nil
}

// NewUpdateWriteRule restricts update writes to editors and checks the payload
// against the schema of its declared type.
func NewUpdateWriteRule(registry *domain.UpdateRegistry) Rule {
	if registry == nil {
		registry = domain.DefaultUpdateRegistry()
	}
	return updateWriteRule{registry: registry}
}

type updateWriteRule struct {
	registry *domain.UpdateRegistry
}

func (updateWriteRule) Name() string { return "update_write" }

func (r updateWriteRule) Evaluate(_ context.Context, req AccessRequest) (Result, error) {
	if !req.Operation.IsWrite() || shapeOf(req.Segments()) != shapeUpdate {
		return Result{}, nil
	}
	if req.Project == nil || !req.Project.HasRole(req.Caller.Email, domain.EditorRoles...) {
		return block(r.Name(), req.Path, "only owners, administrators and authors may change updates"), nil
	}
	if req.Operation == domain.OpDelete {
		return Result{}, nil
	}
	kind, _ := req.Incoming["type"].(string)
	variant, ok := r.registry.Lookup(domain.UpdateType(kind))
	if !ok {
		return block(r.Name(), req.Path, fmt.Sprintf("unknown update type %q", kind)), nil
	}
	return shapeViolations(r.Name(), req.Path, variant.Schema, req.Incoming), nil
}
