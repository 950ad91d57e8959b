package ir

import "slices"

// Flatten lifts the fields of nested objects into a single level, dropping
// the parent key. Later keys win when two levels share a name, in canonical
// key order. Arrays and empty objects are kept as leaf values.
//
// Example: {id: 1, owner: {name: "A", address: {city: "NY"}}}
// flattens to {id: 1, name: "A", city: "NY"}.
func Flatten(record IRObject) IRObject {
	out := make(IRObject, len(record))
	flattenInto(out, record)
	return out
}

func flattenInto(out, obj IRObject) {
	for _, k := range obj.SortedKeys() {
		v := obj[k]
		if nested, ok := v.(IRObject); ok && len(nested) > 0 {
			flattenInto(out, nested)
			continue
		}
		out[k] = v
	}
}

// ExtractHeaders returns the column names a set of records flattens to.
// Columns appear in the order they are first seen: records in slice order,
// keys within a record in canonical order.
func ExtractHeaders(records []IRObject) []string {
	var headers []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, k := range leafKeys(rec) {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	return headers
}

func leafKeys(obj IRObject) []string {
	var keys []string
	for _, k := range obj.SortedKeys() {
		if nested, ok := obj[k].(IRObject); ok && len(nested) > 0 {
			for _, nk := range leafKeys(nested) {
				if !slices.Contains(keys, nk) {
					keys = append(keys, nk)
				}
			}
			continue
		}
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}
