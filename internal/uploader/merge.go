package uploader

import (
	"encoding/json"
	"reflect"
)

// Merge combines new over old: every key of old missing from new is
// adopted; keys present in both recurse (map into map, list into list by
// appending old's items not already in new's list); any other clash keeps
// new's value. new is deep-copied, so mutating the result never mutates new;
// values adopted from old are shared with old, not copied. Merge is
// non-commutative and idempotent when new and old are equal.
func Merge(newV, oldV map[string]interface{}) map[string]interface{} {
	result := deepCopyMap(newV)

	for key, oldVal := range oldV {
		newVal, exists := result[key]
		if !exists {
			result[key] = oldVal
			continue
		}

		switch ov := oldVal.(type) {
		case []interface{}:
			if nv, ok := newVal.([]interface{}); ok {
				merged := append([]interface{}{}, nv...)
				for _, item := range ov {
					seen := false
					for _, have := range nv {
						if reflect.DeepEqual(have, item) {
							seen = true
							break
						}
					}
					if !seen {
						merged = append(merged, item)
					}
				}
				result[key] = merged
			}
		case map[string]interface{}:
			if nv, ok := newVal.(map[string]interface{}); ok {
				result[key] = Merge(nv, ov)
			}
		}
	}

	return result
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	raw, err := json.Marshal(m)
	if err != nil {
		// Fall back to a shallow copy; every value in these maps originates
		// from JSON decoding or our own translator output, so Marshal never
		// actually fails in practice.
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}
