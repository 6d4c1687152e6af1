package domain

import (
	"context"
	"strings"
)

// Operation is the kind of document access being authorised.
type Operation string

// Access operations.
const (
	OpRead   Operation = "read"
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IsWrite reports whether op mutates a document.
func (op Operation) IsWrite() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// Caller identifies who is asking. An empty email is an unauthenticated caller.
type Caller struct {
	Email string
}

// Authenticated reports whether the caller carries a resolved identity.
func (c Caller) Authenticated() bool { return c.Email != "" }

// AccessRequest describes one document operation as the store sees it. Existing and
// Incoming are storage-encoded records; Project is the decoded parent project for
// paths below projects/{id}.
type AccessRequest struct {
	Caller    Caller
	Operation Operation
	Path      string
	Existing  map[string]any
	Incoming  map[string]any
	Project   *Project
}

// Segments splits the request path.
func (r AccessRequest) Segments() []string { return SplitPath(r.Path) }

// SplitPath splits a document or collection path into its segments.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities.
const (
	// SeverityBlock denies the request.
	SeverityBlock Severity = "block"
	// SeverityWarn is logged but allows the request.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Path     string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Denial converts blocking violations into a PermissionError, nil when none block.
func (r Result) Denial() error {
	var reasons []string
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			reasons = append(reasons, v.Rule+": "+v.Message)
		}
	}
	if len(reasons) == 0 {
		return nil
	}
	return &PermissionError{Reason: strings.Join(reasons, "; ")}
}

// Rule evaluates a single access request.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, req AccessRequest) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule{}, e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, req AccessRequest) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, req)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
