package domain

import (
	"reflect"
	"testing"
	"time"
)

var testSchema = NewSchema("widget",
	Field{Name: "name", Kind: KindString, Required: true},
	Field{Name: "colour", Kind: KindString, Enum: []string{"red", "blue"}, Default: func() any { return "red" }},
	Field{Name: "seen", Kind: KindTimestamp, Nullable: true},
	Field{Name: "tags", Kind: KindEnumSet, Enum: []string{"a", "b", "c"}},
	Field{Name: "labels", Kind: KindStringList},
)

func TestSchemaValidateFillsDefaultsAndDropsUnknown(t *testing.T) {
	out, err := testSchema.Validate(map[string]any{"name": "w", "bogus": 1})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := map[string]any{
		"name":   "w",
		"colour": "red",
		"seen":   nil,
		"tags":   []string{},
		"labels": []string{},
	}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("unexpected output\n got %#v\nwant %#v", out, want)
	}
}

func TestSchemaValidateReportsFieldPaths(t *testing.T) {
	_, err := testSchema.Validate(map[string]any{
		"colour": "green",
		"tags":   []any{"a", "a", "z"},
		"labels": "not-a-list",
	})
	var verr *ValidationError
	if !asValidation(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "colour", "tags.1", "tags.2", "labels"} {
		if !verr.HasField(field) {
			t.Fatalf("expected problem for %s in %v", field, verr)
		}
	}
	if verr.Entity != "widget" {
		t.Fatalf("unexpected entity %q", verr.Entity)
	}
}

func TestSchemaTimestampCoercion(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	inputs := []any{
		"2024-03-05",
		"2024-03-05T00:00:00Z",
		"2024-03-05T01:00:00+01:00",
		want,
		&want,
		float64(want.UnixMilli()),
		want.UnixMilli(),
	}
	for _, in := range inputs {
		out, err := testSchema.Validate(map[string]any{"name": "w", "seen": in})
		if err != nil {
			t.Fatalf("validate %v: %v", in, err)
		}
		got, ok := out["seen"].(time.Time)
		if !ok || !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("coerce %#v: got %v", in, out["seen"])
		}
	}
	if _, err := testSchema.Validate(map[string]any{"name": "w", "seen": "yesterday"}); !IsValidation(err) {
		t.Fatalf("expected invalid timestamp to fail, got %v", err)
	}
}

func TestSchemaNullHandling(t *testing.T) {
	if _, err := testSchema.Validate(map[string]any{"name": "w", "seen": nil}); err != nil {
		t.Fatalf("nullable field rejected null: %v", err)
	}
	_, err := testSchema.Validate(map[string]any{"name": nil})
	var verr *ValidationError
	if !asValidation(err, &verr) || verr.Problems[0].Reason != "is required" {
		t.Fatalf("expected required failure, got %v", err)
	}
	if _, err := testSchema.Validate(map[string]any{"name": "w", "labels": nil}); !IsValidation(err) {
		t.Fatalf("expected null list to fail")
	}
}

func TestSchemaExtendOverridesAndPick(t *testing.T) {
	ext := testSchema.Extend("gadget",
		Field{Name: "colour", Kind: KindString, Enum: []string{"green"}, Default: func() any { return "green" }},
		Field{Name: "size", Kind: KindString},
	)
	if ext.Name() != "gadget" {
		t.Fatalf("unexpected name %q", ext.Name())
	}
	wantNames := []string{"name", "colour", "seen", "tags", "labels", "size"}
	if !reflect.DeepEqual(ext.FieldNames(), wantNames) {
		t.Fatalf("unexpected fields %v", ext.FieldNames())
	}
	if f, _ := ext.Field("colour"); f.Enum[0] != "green" {
		t.Fatalf("expected subtype override, got %+v", f)
	}
	if f, _ := testSchema.Field("colour"); f.Enum[0] != "red" {
		t.Fatalf("extend must not modify the base schema")
	}

	picked := ext.Pick("size", "missing", "name")
	if !reflect.DeepEqual(picked.FieldNames(), []string{"name", "size"}) {
		t.Fatalf("unexpected picked fields %v", picked.FieldNames())
	}
}

func TestSchemaObjectListElementPaths(t *testing.T) {
	_, err := RAIDVariant.Schema.Validate(map[string]any{
		"type":  "raid",
		"title": "t",
		"date":  "2024-01-01",
		"raidItems": []any{
			map[string]any{"type": "risk", "summary": "ok"},
			map[string]any{"type": "meteor", "summary": "bad", "priority": "urgent"},
		},
	})
	var verr *ValidationError
	if !asValidation(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !verr.HasField("raidItems.1.type") || !verr.HasField("raidItems.1.priority") {
		t.Fatalf("expected element paths, got %v", verr)
	}
	if verr.HasField("raidItems.0") {
		t.Fatalf("valid element reported: %v", verr)
	}
}

func TestIsEmail(t *testing.T) {
	cases := map[string]bool{
		"ann@example.com":       true,
		"ann.lee@example.co.uk": true,
		"not-an-email":          false,
		"Ann <ann@example.com>": false,
		"":                      false,
	}
	for in, want := range cases {
		if got := IsEmail(in); got != want {
			t.Fatalf("IsEmail(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindRoleMap.String() != "role map" || Kind(99).String() != "kind(99)" {
		t.Fatalf("unexpected kind names")
	}
}

func asValidation(err error, target **ValidationError) bool {
	v, ok := err.(*ValidationError)
	if ok {
		*target = v
	}
	return ok
}
