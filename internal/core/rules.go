package core

import (
	"context"
	"sort"

	"engagement/pkg/domain"
)

// NewDefaultRulesEngine builds the access policy applied to user-facing
// operations. Token-authenticated pushes and triggers bypass it.
func NewDefaultRulesEngine(registry *domain.UpdateRegistry) *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewKnownCollectionsRule())
	engine.Register(NewProjectReadRule())
	engine.Register(NewProjectCreateRule())
	engine.Register(NewProjectUpdateRule())
	engine.Register(NewProjectDeleteRule())
	engine.Register(NewUpdateReadRule())
	engine.Register(NewUpdateWriteRule(registry))
	return engine
}

// guard evaluates req and converts blocking violations into a PermissionError.
func (s *Service) guard(ctx context.Context, req AccessRequest) error {
	res, err := s.rules.Evaluate(ctx, req)
	if err != nil {
		return err
	}
	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("access rule warning", "rule", v.Rule, "path", v.Path, "message", v.Message)
		}
	}
	return res.Denial()
}

// pathShape classifies request paths under the projects tree.
type pathShape int

const (
	shapeUnknown pathShape = iota
	shapeProjects
	shapeProject
	shapeUpdates
	shapeUpdate
)

func shapeOf(segs []string) pathShape {
	if len(segs) == 0 || segs[0] != CollectionProjects {
		return shapeUnknown
	}
	switch len(segs) {
	case 1:
		return shapeProjects
	case 2:
		return shapeProject
	case 3, 4:
		if segs[2] == CollectionUpdates {
			if len(segs) == 3 {
				return shapeUpdates
			}
			return shapeUpdate
		}
	}
	return shapeUnknown
}

func block(rule, path, msg string) Result {
	return Result{Violations: []Violation{{Rule: rule, Severity: SeverityBlock, Message: msg, Path: path}}}
}

// missingRequired lists required schema fields absent or null in record.
func missingRequired(schema *domain.Schema, record map[string]any) []string {
	var out []string
	for _, f := range schema.Fields() {
		if !f.Required {
			continue
		}
		if v, ok := record[f.Name]; !ok || v == nil {
			out = append(out, f.Name)
		}
	}
	return out
}

// extraFields lists keys in record the schema does not declare.
func extraFields(schema *domain.Schema, record map[string]any) []string {
	var out []string
	for k := range record {
		if !schema.Has(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// roleTable reads an encoded role map in either its in-memory or normalised form.
func roleTable(record map[string]any) map[string]string {
	out := make(map[string]string)
	switch roles := record["roles"].(type) {
	case map[string]string:
		for k, v := range roles {
			out[k] = v
		}
	case map[string]any:
		for k, v := range roles {
			s, _ := v.(string)
			out[k] = s
		}
	}
	return out
}
