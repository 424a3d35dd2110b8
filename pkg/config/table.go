package config

import "github.com/cuemby/sentinel/pkg/superr"

// maxMergeDepth bounds the recursive table merge. The value is
// arbitrary but generous: a config nested deeper than this crosses into
// runaway-template territory long before it's a legitimate package
// configuration.
const maxMergeDepth = 30

// Table is a TOML table decoded into native Go values: strings,
// int64/float64, bool, time.Time, []any for arrays, and Table for
// nested tables. Go's text/template sorts map keys when ranging over
// them (since Go 1.12), which already gives deterministic,
// reproducible render output for unchanged input without a hand-rolled
// ordered-map type — so Table is a plain named map rather than an
// insertion-order-preserving structure.
type Table map[string]any

// normalizeTable recursively walks a value decoded by go-toml/v2's
// Unmarshal (into map[string]any) and converts every nested
// map[string]any into a Table, so that later merge type-switches see
// Table consistently rather than a mix of Table and map[string]any.
func normalizeTable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(Table, len(t))
		for k, val := range t {
			out[k] = normalizeTable(val)
		}
		return out
	case Table:
		out := make(Table, len(t))
		for k, val := range t {
			out[k] = normalizeTable(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeTable(val)
		}
		return out
	default:
		return v
	}
}

// merge recursively merges src into dst, src taking priority on
// conflicting scalar/array keys; when both sides hold a table at the
// same key the merge recurses instead of overwriting.
func merge(dst, src Table, depth int) error {
	if depth > maxMergeDepth {
		return superr.ErrTomlMerge
	}
	for k, sv := range src {
		if dt, ok := dst[k].(Table); ok {
			if st, ok := sv.(Table); ok {
				if err := merge(dt, st, depth+1); err != nil {
					return err
				}
				continue
			}
		}
		dst[k] = sv
	}
	return nil
}

// clone performs a deep copy so that merge never mutates a caller's
// original tier table in place.
func clone(t Table) Table {
	out := make(Table, len(t))
	for k, v := range t {
		switch tv := v.(type) {
		case Table:
			out[k] = clone(tv)
		default:
			out[k] = tv
		}
	}
	return out
}

// get resolves a dot-separated path ("network.port") into a nested
// Table, returning the leaf value and whether every segment was found.
func get(t Table, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	v, ok := t[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return v, true
	}
	nested, ok := v.(Table)
	if !ok {
		return nil, false
	}
	return get(nested, path[1:])
}
