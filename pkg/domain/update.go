package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateType is the discriminator stored in an update's "type" field.
type UpdateType string

// Known update types.
const (
	UpdateInsights UpdateType = "insights"
	UpdateGoals    UpdateType = "goals"
	UpdateRelease  UpdateType = "release"
	UpdateRAID     UpdateType = "raid"
	UpdateFlow     UpdateType = "flow"
)

// AllUpdateTypes is the fixed enum projects may enable.
var AllUpdateTypes = []UpdateType{UpdateInsights, UpdateGoals, UpdateRelease, UpdateRAID, UpdateFlow}

func updateTypeNames() []string {
	out := make([]string, len(AllUpdateTypes))
	for i, t := range AllUpdateTypes {
		out[i] = string(t)
	}
	return out
}

// CollectionUpdates is the subcollection of a project holding its updates.
const CollectionUpdates = "updates"

// KeyID is the update key meaning "match the sibling with this document id".
const KeyID = "id"

// Release statuses.
const (
	ReleaseInProgress = "in-progress"
	ReleaseComplete   = "complete"
	ReleaseOverdue    = "overdue"
)

// UpdateBaseSchema holds the fields shared by every update variant.
var UpdateBaseSchema = NewSchema("update",
	Field{Name: "type", Kind: KindString, Required: true, Enum: updateTypeNames()},
	Field{Name: "title", Kind: KindString, Required: true},
	Field{Name: "summary", Kind: KindString},
	Field{Name: "date", Kind: KindTimestamp, Required: true},
	Field{Name: "team", Kind: KindString, Nullable: true},
)

var raidItemSchema = NewSchema("raidItem",
	Field{Name: "type", Kind: KindString, Required: true, Enum: []string{"risk", "issue", "assumption", "dependency", "decision"}},
	Field{Name: "summary", Kind: KindString, Required: true},
	Field{Name: "url", Kind: KindString},
	Field{Name: "priority", Kind: KindString, Enum: []string{"low", "medium", "high"}},
	Field{Name: "date", Kind: KindTimestamp, Nullable: true},
)

var cycleTimeSchema = NewSchema("cycleTime",
	Field{Name: "item", Kind: KindString, Required: true},
	Field{Name: "commitmentDate", Kind: KindTimestamp, Required: true},
	Field{Name: "completionDate", Kind: KindTimestamp, Nullable: true},
	Field{Name: "itemType", Kind: KindString},
	Field{Name: "url", Kind: KindString},
)

// UpdateVariant describes one concrete update type.
type UpdateVariant struct {
	Type   UpdateType
	Schema *Schema
	// Key names the field the reconciler matches existing siblings on.
	Key      string
	newValue func() any
}

func variant(t UpdateType, key string, newValue func() any, fields ...Field) UpdateVariant {
	stamp := Field{
		Name:     "type",
		Kind:     KindString,
		Required: true,
		Enum:     []string{string(t)},
		Default:  func() any { return string(t) },
	}
	fields = append([]Field{stamp}, fields...)
	return UpdateVariant{
		Type:     t,
		Schema:   UpdateBaseSchema.Extend(string(t)+" update", fields...),
		Key:      key,
		newValue: newValue,
	}
}

var authoredFields = []Field{
	{Name: "authorId", Kind: KindString},
	{Name: "authorName", Kind: KindString},
	{Name: "text", Kind: KindString},
}

// Built-in variants.
var (
	InsightsVariant = variant(UpdateInsights, KeyID, func() any { return &InsightsUpdate{} }, authoredFields...)
	GoalsVariant    = variant(UpdateGoals, KeyID, func() any { return &GoalsUpdate{} }, authoredFields...)
	ReleaseVariant  = variant(UpdateRelease, KeyID, func() any { return &ReleaseUpdate{} },
		Field{Name: "releaseDate", Kind: KindTimestamp, Nullable: true},
		Field{
			Name:    "status",
			Kind:    KindString,
			Enum:    []string{ReleaseInProgress, ReleaseComplete, ReleaseOverdue},
			Default: func() any { return ReleaseInProgress },
		},
		Field{Name: "text", Kind: KindString},
	)
	RAIDVariant = variant(UpdateRAID, KeyID, func() any { return &RAIDUpdate{} },
		Field{Name: "raidItems", Kind: KindObjectList, Elem: raidItemSchema},
	)
	FlowVariant = variant(UpdateFlow, "team", func() any { return &FlowUpdate{} },
		Field{Name: "cycleTimeData", Kind: KindObjectList, Elem: cycleTimeSchema},
	)
)

// UpdateRegistry maps discriminators to variants. It is immutable once built.
type UpdateRegistry struct {
	byType map[UpdateType]UpdateVariant
	order  []UpdateType
}

// NewUpdateRegistry builds a registry. Registering a discriminator twice keeps the
// last descriptor.
func NewUpdateRegistry(variants ...UpdateVariant) *UpdateRegistry {
	r := &UpdateRegistry{byType: make(map[UpdateType]UpdateVariant, len(variants))}
	for _, v := range variants {
		if _, dup := r.byType[v.Type]; !dup {
			r.order = append(r.order, v.Type)
		}
		r.byType[v.Type] = v
	}
	return r
}

var defaultUpdateRegistry = NewUpdateRegistry(InsightsVariant, GoalsVariant, ReleaseVariant, RAIDVariant, FlowVariant)

// DefaultUpdateRegistry returns the registry holding every built-in variant.
func DefaultUpdateRegistry() *UpdateRegistry { return defaultUpdateRegistry }

// LookupUpdateType finds a variant in the default registry.
func LookupUpdateType(t UpdateType) (UpdateVariant, bool) { return defaultUpdateRegistry.Lookup(t) }

// Lookup finds the variant registered for t.
func (r *UpdateRegistry) Lookup(t UpdateType) (UpdateVariant, bool) {
	v, ok := r.byType[t]
	return v, ok
}

// Types returns the registered discriminators in registration order.
func (r *UpdateRegistry) Types() []UpdateType {
	return append([]UpdateType{}, r.order...)
}

// New constructs an update of type t, stamping the discriminator over whatever raw
// carries. raw is fully validated when non-nil.
func (r *UpdateRegistry) New(t UpdateType, id string, raw map[string]any) (*Update, error) {
	v, ok := r.byType[t]
	if !ok {
		return nil, NewValidationError("update", "type", fmt.Sprintf("unknown update type %q", t))
	}
	var input map[string]any
	if raw != nil {
		input = make(map[string]any, len(raw)+1)
		for k, val := range raw {
			input[k] = val
		}
		input["type"] = string(t)
	}
	u := &Update{variant: &v, kind: t}
	if err := u.init(v.Schema, CollectionUpdates, id, input); err != nil {
		return nil, err
	}
	return u, nil
}

// FromStorageRecord loads a stored update. An unknown discriminator yields a
// degraded base update instead of an error.
func (r *UpdateRegistry) FromStorageRecord(id string, raw map[string]any) *Update {
	kind, _ := raw["type"].(string)
	if v, ok := r.byType[UpdateType(kind)]; ok {
		u := &Update{variant: &v, kind: v.Type}
		u.load(v.Schema, CollectionUpdates, id, raw)
		return u
	}
	u := &Update{kind: UpdateType(kind)}
	u.load(UpdateBaseSchema, CollectionUpdates, id, raw)
	if u.err == nil {
		u.err = NewValidationError("update", "type", fmt.Sprintf("unregistered update type %q", kind))
	}
	// Keep the raw payload, discriminator included, for degraded views.
	for k, v := range raw {
		if _, kept := u.values[k]; !kept || k == "type" {
			u.values[k] = cloneValue(v)
		}
	}
	return u
}

// NewUpdate constructs an update through the default registry.
func NewUpdate(t UpdateType, id string, raw map[string]any) (*Update, error) {
	return defaultUpdateRegistry.New(t, id, raw)
}

// UpdateFromStorageRecord loads a stored update through the default registry.
func UpdateFromStorageRecord(id string, raw map[string]any) *Update {
	return defaultUpdateRegistry.FromStorageRecord(id, raw)
}

// Update is a project status update of one registered variant.
type Update struct {
	Model
	variant *UpdateVariant
	kind    UpdateType
}

// Type returns the discriminator.
func (u *Update) Type() UpdateType { return u.kind }

// Variant returns the registered variant, false for degraded unknown types.
func (u *Update) Variant() (UpdateVariant, bool) {
	if u.variant == nil {
		return UpdateVariant{}, false
	}
	return *u.variant, true
}

// UpdateKey returns the field the reconciler matches siblings on.
func (u *Update) UpdateKey() string {
	if u.variant == nil || u.variant.Key == "" {
		return KeyID
	}
	return u.variant.Key
}

// Update applies a partial edit. The discriminator may be repeated but never changed.
func (u *Update) Update(partial map[string]any) error {
	if raw, ok := partial["type"]; ok {
		if s, _ := raw.(string); s != string(u.kind) {
			return NewValidationError(u.schema.Name(), "type",
				fmt.Sprintf("cannot change type from %q to %v", u.kind, raw))
		}
	}
	return u.Model.Update(partial)
}

// Title returns the update title.
func (u *Update) Title() string { return stringValue(u.values["title"]) }

// Summary returns the update summary.
func (u *Update) Summary() string { return stringValue(u.values["summary"]) }

// Date returns the update date, zero when unset.
func (u *Update) Date() time.Time {
	t, _ := u.values["date"].(time.Time)
	return t
}

// Team returns the team the update belongs to, if any.
func (u *Update) Team() (string, bool) {
	s, ok := u.values["team"].(string)
	return s, ok
}

// Decode copies the current values into dst, typically one of the variant structs.
func (u *Update) Decode(dst any) error {
	buf, err := json.Marshal(u.ToObject())
	if err != nil {
		return fmt.Errorf("encode %s update: %w", u.kind, err)
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return fmt.Errorf("decode %s update: %w", u.kind, err)
	}
	return nil
}

// Typed decodes the update into its variant struct, e.g. *FlowUpdate.
func (u *Update) Typed() (any, error) {
	if u.variant == nil || u.variant.newValue == nil {
		return nil, NewValidationError("update", "type", fmt.Sprintf("unregistered update type %q", u.kind))
	}
	dst := u.variant.newValue()
	if err := u.Decode(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// UpdateFields are shared by every typed variant.
type UpdateFields struct {
	Type    UpdateType `json:"type"`
	Title   string     `json:"title"`
	Summary string     `json:"summary"`
	Date    time.Time  `json:"date"`
	Team    *string    `json:"team"`
}

// InsightsUpdate is the typed form of an insights update.
type InsightsUpdate struct {
	UpdateFields
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Text       string `json:"text"`
}

// GoalsUpdate is the typed form of a goals update.
type GoalsUpdate struct {
	UpdateFields
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Text       string `json:"text"`
}

// ReleaseUpdate is the typed form of a release update.
type ReleaseUpdate struct {
	UpdateFields
	ReleaseDate *time.Time `json:"releaseDate"`
	Status      string     `json:"status"`
	Text        string     `json:"text"`
}

// RAIDItem is one risk, issue, assumption, dependency or decision.
type RAIDItem struct {
	Type     string     `json:"type"`
	Summary  string     `json:"summary"`
	URL      string     `json:"url,omitempty"`
	Priority string     `json:"priority,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
}

// RAIDUpdate is the typed form of a RAID update.
type RAIDUpdate struct {
	UpdateFields
	RAIDItems []RAIDItem `json:"raidItems"`
}

// CycleTimeItem records when one work item was committed to and completed.
type CycleTimeItem struct {
	Item           string     `json:"item"`
	CommitmentDate time.Time  `json:"commitmentDate"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
	ItemType       string     `json:"itemType,omitempty"`
	URL            string     `json:"url,omitempty"`
}

// FlowUpdate is the typed form of a flow update.
type FlowUpdate struct {
	UpdateFields
	CycleTimeData []CycleTimeItem `json:"cycleTimeData"`
}
