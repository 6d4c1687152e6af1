package domain

import (
	"fmt"
	"strings"
)

// Record is a persisted entity that can anchor child collections.
type Record interface {
	ID() string
	Path() (string, error)
}

// Model is the schema-backed base shared by every stored entity. Its value map
// always holds exactly the schema's declared fields.
type Model struct {
	schema     *Schema
	collection string
	id         string
	values     map[string]any
	err        error
	parent     Record
}

// NewModel seeds schema defaults and, when raw is non-nil, applies full validation.
func NewModel(schema *Schema, collection, id string, raw map[string]any) (*Model, error) {
	m := &Model{}
	if err := m.init(schema, collection, id, raw); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) init(schema *Schema, collection, id string, raw map[string]any) error {
	m.schema = schema
	m.collection = collection
	m.id = id
	m.values = schema.Defaults()
	if raw == nil {
		return nil
	}
	values, err := schema.Validate(raw)
	if err != nil {
		return err
	}
	m.values = values
	return nil
}

// load builds the model from a stored record. Invalid records are kept, carrying
// every raw value that still coerces, and flagged through Err.
func (m *Model) load(schema *Schema, collection, id string, raw map[string]any) {
	m.schema = schema
	m.collection = collection
	m.id = id
	values, err := schema.Validate(raw)
	if err == nil {
		m.values = values
		return
	}
	m.values = schema.Defaults()
	for _, f := range schema.fields {
		v, present := raw[f.Name]
		if !present {
			continue
		}
		if coerced, errs := coerceField(f, v, f.Name); len(errs) == 0 {
			m.values[f.Name] = coerced
		}
	}
	m.err = err
}

// LoadModel is the generic storage-record loader; it never fails.
func LoadModel(schema *Schema, collection, id string, raw map[string]any) *Model {
	m := &Model{}
	m.load(schema, collection, id, raw)
	return m
}

// ID returns the document id, empty until persisted.
func (m *Model) ID() string { return m.id }

// SetID assigns the document id after the record has been written.
func (m *Model) SetID(id string) { m.id = id }

// Schema returns the schema backing the model.
func (m *Model) Schema() *Schema { return m.schema }

// Collection returns the collection name the model is stored under.
func (m *Model) Collection() string { return m.collection }

// Parent returns the containing record, if any.
func (m *Model) Parent() Record { return m.parent }

// SetParent attaches the containing record. The parent is never serialised.
func (m *Model) SetParent(parent Record) { m.parent = parent }

// Err returns the validation failure recorded when a stored record was degraded.
func (m *Model) Err() error { return m.err }

// Degraded reports whether the model was loaded from an invalid record.
func (m *Model) Degraded() bool { return m.err != nil }

// Get returns the current value of a declared field.
func (m *Model) Get(name string) any { return cloneValue(m.values[name]) }

// Update validates only the declared keys present in partial and assigns them.
// On failure nothing is assigned.
func (m *Model) Update(partial map[string]any) error {
	keys := make([]string, 0, len(partial))
	for k := range partial {
		if m.schema.Has(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	values, err := m.schema.Pick(keys...).Validate(partial)
	if err != nil {
		return err
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// ToObject returns a copy of the declared fields and their current values.
func (m *Model) ToObject() map[string]any { return cloneMap(m.values) }

// Validate runs full-schema validation over the current values.
func (m *Model) Validate() error {
	_, err := m.schema.Validate(m.values)
	return err
}

// IsValid reports whether the current values pass full-schema validation.
func (m *Model) IsValid() bool { return m.Validate() == nil }

// ToStorageRecord validates the full object and returns the value map to persist.
func (m *Model) ToStorageRecord() (map[string]any, error) {
	return m.schema.Validate(m.values)
}

// CollectionPath returns the path of the collection holding the model,
// prefixed by the parent's path when a parent is attached.
func (m *Model) CollectionPath() (string, error) {
	if m.parent == nil {
		return m.collection, nil
	}
	parentPath, err := m.parent.Path()
	if err != nil {
		return "", fmt.Errorf("parent path: %w", err)
	}
	return JoinPath(parentPath, m.collection), nil
}

// Path returns "<collection>/<id>", prefixed by the parent's path when attached.
func (m *Model) Path() (string, error) {
	if m.id == "" {
		return "", fmt.Errorf("%s path: %w", m.schema.Name(), ErrNoID)
	}
	collection, err := m.CollectionPath()
	if err != nil {
		return "", err
	}
	return JoinPath(collection, m.id), nil
}

// JoinPath joins document path segments with "/".
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	list, _ := v.([]string)
	return append([]string{}, list...)
}
