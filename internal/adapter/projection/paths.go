package projection

import (
	"strconv"
	"strings"
)

// RemoveKeys deletes the dotted paths from doc. Missing paths are ignored.
func RemoveKeys(doc map[string]any, paths ...string) {
	for _, path := range paths {
		keys := strings.Split(path, ".")
		parent := doc
		for _, key := range keys[:len(keys)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent != nil {
			delete(parent, keys[len(keys)-1])
		}
	}
}

// Lookup returns the value under a dotted path. Numeric segments index into
// lists.
func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, key := range strings.Split(path, ".") {
		switch t := current.(type) {
		case map[string]any:
			v, ok := t[key]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			current = t[i]
		default:
			return nil, false
		}
	}
	return current, true
}
