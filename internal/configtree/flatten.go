package configtree

import (
	"fmt"
	"sort"
)

// flatten turns a nested map document into dotted-key leaves. Lists and
// scalars terminate recursion; only nested maps are descended into, which
// is sufficient for the configuration documents this package handles
// (defaults, model overrides, runtime overrides are all key/value nestings,
// not arbitrary data).
func flatten(prefix string, doc map[string]any, out map[string]any) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := doc[k].(type) {
		case map[string]any:
			flatten(key, v, out)
		default:
			out[key] = v
		}
	}
}

func flattenedKeys(doc map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", doc, out)
	return out
}

// Flatten turns a nested configuration document (as returned by
// Tree.Snapshot) into dotted-key leaves suitable for SetRuntimeOverride.
func Flatten(doc map[string]any) map[string]any {
	return flattenedKeys(doc)
}

// nestKey writes value into dst at the dotted path key, creating
// intermediate maps as needed.
func nestKey(dst map[string]any, key string, value any) {
	parts := splitDotted(key)
	cur := dst
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
}

func splitDotted(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	return parts
}

func requireNonEmptyKey(key string) error {
	if key == "" {
		return fmt.Errorf("configuration key must not be empty")
	}
	return nil
}
