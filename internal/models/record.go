package models

import (
	"fmt"
	"sort"
)

// Record is one remote row keyed by field name. Relation fields hold either
// false or a two element list of (id, display label).
type Record map[string]interface{}

// ID returns the numeric id of the record.
func (r Record) ID() int64 {
	id, _ := AsInt64(r["id"])
	return id
}

// String returns the field as a string, or "" when absent or false.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case nil, bool:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Relation decodes a relation field. ok is false when the relation is unset.
func (r Record) Relation(field string) (id int64, label string, ok bool) {
	pair, isList := r[field].([]interface{})
	if !isList || len(pair) == 0 {
		return 0, "", false
	}
	id, ok = AsInt64(pair[0])
	if !ok {
		return 0, "", false
	}
	if len(pair) > 1 {
		label, _ = pair[1].(string)
	}
	return id, label, true
}

// RelationLabel returns the display label of a relation or nil when unset.
func (r Record) RelationLabel(field string) *string {
	if _, label, ok := r.Relation(field); ok {
		return &label
	}
	return nil
}

// IDs decodes a many-relation field into its id list.
func (r Record) IDs(field string) []int64 {
	raw, ok := r[field].([]interface{})
	if !ok {
		if typed, isInts := r[field].([]int64); isInts {
			return append([]int64(nil), typed...)
		}
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		if id, ok := AsInt64(item); ok {
			out = append(out, id)
		}
	}
	return out
}

// AsInt64 converts the numeric shapes produced by decoders into int64.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// SortByIDDesc orders records newest first without mutating the input.
func SortByIDDesc(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID() > out[j].ID() })
	return out
}

// FieldInfo describes one remote field as returned by fields_get.
type FieldInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Help  string `json:"help,omitempty"`
	Type  string `json:"type"`
}
