package domain

import (
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the value shape a Field accepts.
type Kind int

// Supported field kinds.
const (
	KindString Kind = iota
	KindTimestamp
	KindStringList
	// KindEnumSet is a duplicate-free list whose entries must come from Field.Enum.
	KindEnumSet
	// KindRoleMap maps e-mail addresses to values from Field.Enum.
	KindRoleMap
	// KindObjectList is a list of objects validated against Field.Elem.
	KindObjectList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindStringList:
		return "string list"
	case KindEnumSet:
		return "enum set"
	case KindRoleMap:
		return "role map"
	case KindObjectList:
		return "object list"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Field describes one declared attribute of a schema.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Nullable bool
	Enum     []string
	// Default produces a fresh default value. When nil the kind's zero default is used.
	Default func() any
	// Elem validates the entries of a KindObjectList field.
	Elem *Schema
	// Check runs after coercion and returns a non-empty reason to reject the value.
	Check func(v any) string
}

func (f Field) defaultValue() any {
	if f.Default != nil {
		return f.Default()
	}
	switch f.Kind {
	case KindString:
		if f.Nullable {
			return nil
		}
		return ""
	case KindStringList, KindEnumSet:
		return []string{}
	case KindRoleMap:
		return map[string]string{}
	case KindObjectList:
		return []map[string]any{}
	default:
		return nil
	}
}

// Schema is an ordered set of field descriptors. Schemas are immutable once built.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema. Later fields with a duplicate name replace earlier ones.
func NewSchema(name string, fields ...Field) *Schema {
	s := &Schema{name: name, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if i, ok := s.index[f.Name]; ok {
			s.fields[i] = f
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Name returns the entity name the schema validates.
func (s *Schema) Name() string { return s.name }

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldNames returns the declared field names in declaration order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a declared field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether name is a declared field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Extend returns a new schema holding the union of s and fields; fields override
// declarations of the same name in s.
func (s *Schema) Extend(name string, fields ...Field) *Schema {
	all := make([]Field, 0, len(s.fields)+len(fields))
	all = append(all, s.fields...)
	all = append(all, fields...)
	return NewSchema(name, all...)
}

// Pick returns the sub-schema restricted to the given declared keys. Unknown keys
// are ignored.
func (s *Schema) Pick(keys ...string) *Schema {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	picked := make([]Field, 0, len(keys))
	for _, f := range s.fields {
		if _, ok := want[f.Name]; ok {
			picked = append(picked, f)
		}
	}
	return NewSchema(s.name, picked...)
}

// Defaults returns a fresh default value map covering every declared field.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.defaultValue()
	}
	return out
}

// Validate coerces input into a value map holding exactly the declared fields.
// Unknown keys are dropped and missing optional keys take their defaults.
func (s *Schema) Validate(input map[string]any) (map[string]any, error) {
	out, problems := s.validate(input, "", false)
	if len(problems) > 0 {
		return nil, &ValidationError{Entity: s.name, Problems: problems}
	}
	return out, nil
}

func (s *Schema) validate(input map[string]any, prefix string, sparse bool) (map[string]any, []FieldError) {
	out := make(map[string]any, len(s.fields))
	var problems []FieldError
	for _, f := range s.fields {
		path := prefix + f.Name
		raw, present := input[f.Name]
		if !present {
			if f.Required {
				problems = append(problems, FieldError{Path: path, Reason: "is required"})
				continue
			}
			if sparse && f.Default == nil {
				continue
			}
			out[f.Name] = f.defaultValue()
			continue
		}
		v, errs := coerceField(f, raw, path)
		if len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		out[f.Name] = v
	}
	return out, problems
}

func coerceField(f Field, raw any, path string) (any, []FieldError) {
	fail := func(reason string) (any, []FieldError) {
		return nil, []FieldError{{Path: path, Reason: reason}}
	}
	if raw == nil {
		if f.Nullable {
			return nil, nil
		}
		if f.Required {
			return fail("is required")
		}
		return fail("must not be null")
	}

	var (
		v    any
		errs []FieldError
	)
	switch f.Kind {
	case KindString:
		str, ok := raw.(string)
		if !ok {
			return fail("must be a string")
		}
		if f.Required && str == "" {
			return fail("is required")
		}
		if len(f.Enum) > 0 && !contains(f.Enum, str) {
			return fail(fmt.Sprintf("must be one of %v", f.Enum))
		}
		v = str
	case KindTimestamp:
		t, ok := coerceTime(raw)
		if !ok {
			return fail("must be a timestamp")
		}
		if f.Required && t.IsZero() {
			return fail("is required")
		}
		v = t
	case KindStringList, KindEnumSet:
		list, ok := coerceStrings(raw)
		if !ok {
			return fail("must be a list of strings")
		}
		seen := make(map[string]struct{}, len(list))
		for i, item := range list {
			itemPath := path + "." + strconv.Itoa(i)
			if len(f.Enum) > 0 && !contains(f.Enum, item) {
				errs = append(errs, FieldError{Path: itemPath, Reason: fmt.Sprintf("must be one of %v", f.Enum)})
				continue
			}
			if f.Kind == KindEnumSet {
				if _, dup := seen[item]; dup {
					errs = append(errs, FieldError{Path: itemPath, Reason: "duplicate value"})
				}
				seen[item] = struct{}{}
			}
		}
		if f.Required && len(list) == 0 {
			errs = append(errs, FieldError{Path: path, Reason: "must not be empty"})
		}
		v = list
	case KindRoleMap:
		roles, ok := coerceStringMap(raw)
		if !ok {
			return fail("must be a map of strings")
		}
		keys := make([]string, 0, len(roles))
		for k := range roles {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !IsEmail(k) {
				errs = append(errs, FieldError{Path: path + "." + k, Reason: "key must be an email address"})
			}
			if len(f.Enum) > 0 && !contains(f.Enum, roles[k]) {
				errs = append(errs, FieldError{Path: path + "." + k, Reason: fmt.Sprintf("must be one of %v", f.Enum)})
			}
		}
		if f.Required && len(roles) == 0 {
			errs = append(errs, FieldError{Path: path, Reason: "must not be empty"})
		}
		v = roles
	case KindObjectList:
		items, ok := coerceObjects(raw)
		if !ok {
			return fail("must be a list of objects")
		}
		list := make([]map[string]any, 0, len(items))
		for i, item := range items {
			var elemErrs []FieldError
			var obj map[string]any
			if f.Elem != nil {
				obj, elemErrs = f.Elem.validate(item, path+"."+strconv.Itoa(i)+".", true)
			} else {
				obj = cloneMap(item)
			}
			errs = append(errs, elemErrs...)
			list = append(list, obj)
		}
		v = list
	default:
		return fail("unsupported field kind " + f.Kind.String())
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if f.Check != nil {
		if reason := f.Check(v); reason != "" {
			return fail(reason)
		}
	}
	return v, nil
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func coerceTime(raw any) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int:
		return time.UnixMilli(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func coerceStrings(raw any) ([]string, bool) {
	switch list := raw.(type) {
	case []string:
		return append([]string{}, list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceStringMap(raw any) (map[string]string, bool) {
	switch m := raw.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceObjects(raw any) ([]map[string]any, bool) {
	switch list := raw.(type) {
	case []map[string]any:
		return list, true
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}

// IsEmail reports whether s is a bare e-mail address (no display name).
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// cloneValue deep-copies the container shapes produced by Schema.Validate.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	case []string:
		return append([]string{}, t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = cloneMap(m)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}
