// Package history records every mutation of entities and facet values
// as versioned field diffs and supports undoing the most recent one.
package history

import (
	"encoding/json"
	"reflect"
	"sort"
)

// FieldChange holds the before and after value of a single field.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Diff maps field names to their changes. Diffs are stored as JSONB,
// so values are normalized through a JSON round-trip before comparison.
type Diff map[string]FieldChange

// normalize pushes a value through JSON so that e.g. int 5 and float64
// 5 compare equal the way they will after storage.
func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func valuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// ComputeDiff compares two field maps. Fields absent from after are
// recorded as changed to nil; fields absent from before as changed
// from nil. An empty result means nothing changed.
func ComputeDiff(before, after map[string]interface{}) Diff {
	diff := make(Diff)
	for field, newValue := range after {
		oldValue, existed := before[field]
		if !existed || !valuesEqual(oldValue, newValue) {
			diff[field] = FieldChange{Old: normalize(oldValue), New: normalize(newValue)}
		}
	}
	for field, oldValue := range before {
		if _, exists := after[field]; !exists {
			diff[field] = FieldChange{Old: normalize(oldValue), New: nil}
		}
	}
	return diff
}

// Invert swaps old and new for every field, producing the diff that
// undoes this one.
func (d Diff) Invert() Diff {
	inverted := make(Diff, len(d))
	for field, change := range d {
		inverted[field] = FieldChange{Old: change.New, New: change.Old}
	}
	return inverted
}

// NewValues returns the per-field target state this diff moves to,
// ready to hand to a field patch.
func (d Diff) NewValues() map[string]interface{} {
	values := make(map[string]interface{}, len(d))
	for field, change := range d {
		values[field] = change.New
	}
	return values
}

// Apply writes the diff's new side onto a field map, returning a new
// map. The input is not modified.
func (d Diff) Apply(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+len(d))
	for k, v := range fields {
		out[k] = v
	}
	for field, change := range d {
		if change.New == nil {
			delete(out, field)
			continue
		}
		out[field] = change.New
	}
	return out
}

// Fields returns the changed field names in sorted order.
func (d Diff) Fields() []string {
	fields := make([]string, 0, len(d))
	for field := range d {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
