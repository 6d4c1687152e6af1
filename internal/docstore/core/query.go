package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"engagement/pkg/domain"
)

// Normalize returns the JSON form of data as a generic map, the shape every
// backend hands back from reads.
func Normalize(data map[string]any) (map[string]any, error) {
	buf, err := Encode(data)
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Encode serialises a document body.
func Encode(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf, nil
}

// Decode parses a stored document body.
func Decode(buf []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(buf) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []domain.Filter) bool {
	for _, f := range filters {
		got, ok := data[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case domain.FilterEqual, "":
			if !reflect.DeepEqual(got, normalizeValue(f.Value)) {
				return false
			}
		case domain.FilterIn:
			list, _ := normalizeValue(f.Value).([]any)
			found := false
			for _, candidate := range list {
				if reflect.DeepEqual(got, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Apply filters, orders and limits docs according to q. Documents lacking the
// order field are excluded when OrderBy is set. Ties fall back to path order.
func Apply(docs []domain.Document, q domain.Query) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if !Matches(d.Data, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := d.Data[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c := Compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].Path < out[j].Path
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Compare orders two JSON values: null, then booleans, numbers and strings.
// Strings that both parse as RFC 3339 timestamps compare chronologically.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		if ta, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if tb, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return ta.Compare(tb)
			}
		}
		return strings.Compare(av, bv)
	default:
		return 0
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// IsDirectChild reports whether docPath is a document directly inside collection.
func IsDirectChild(collection, docPath string) bool {
	return domain.CollectionOf(docPath) == CleanPath(collection)
}
