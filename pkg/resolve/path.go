package resolve

import (
	"encoding/json"
	"strconv"
)

// LookupPath navigates a decoded JSON tree along dotted-path segments.
//
// A segment against an object selects the key. A segment against a
// collection selects the element whose "name" field equals the segment,
// which is how inventory lists (networks, templates) and vault secret lists
// are addressed; a numeric segment falls back to positional indexing.
func LookupPath(root any, path []string) (any, bool) {
	current := root
	for _, segment := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			next, ok := selectElement(node, segment)
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, true
}

// selectElement picks a collection element by its "name" field, or by index
// when the segment is numeric and no name matches.
func selectElement(list []any, segment string) (any, bool) {
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := obj["name"].(string); ok && name == segment {
			return el, true
		}
	}
	if idx, err := strconv.Atoi(segment); err == nil && idx >= 0 && idx < len(list) {
		return list[idx], true
	}
	return nil, false
}

// toTree converts any JSON-marshalable value into a decoded JSON tree so it
// can be navigated by LookupPath.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
