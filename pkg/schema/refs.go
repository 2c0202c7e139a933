package schema

import "strings"

const definitionsRefPrefix = "#/definitions/"

// CollectRefs scans a schema tree for local definition references and returns
// the referenced definition names.
func CollectRefs(tree any) []string {
	var out []string
	collectRefs(tree, &out)
	return Dedupe(out)
}

func collectRefs(tree any, out *[]string) {
	switch v := tree.(type) {
	case map[string]any:
		for key, val := range v {
			if key == "$ref" {
				if ref, ok := val.(string); ok && strings.HasPrefix(ref, definitionsRefPrefix) {
					*out = append(*out, strings.TrimPrefix(ref, definitionsRefPrefix))
				}
				continue
			}
			collectRefs(val, out)
		}
	case []any:
		for _, item := range v {
			collectRefs(item, out)
		}
	}
}

// PruneDefinitions removes definitions that are not reachable from the rest
// of the schema tree. Reachability is transitive: a definition referenced
// only by another kept definition is kept too. The input map is returned
// with its definitions key rewritten (or removed when nothing survives).
func PruneDefinitions(tree map[string]any) map[string]any {
	defs := ReadMap(tree, "definitions")
	if len(defs) == 0 {
		return tree
	}

	// Seed with references from everything except the definitions map itself.
	var seeds []string
	for key, val := range tree {
		if key == "definitions" {
			continue
		}
		collectRefs(val, &seeds)
	}

	reachable := make(map[string]struct{})
	queue := append([]string(nil), seeds...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, seen := reachable[name]; seen {
			continue
		}
		target, ok := defs[name]
		if !ok {
			continue
		}
		reachable[name] = struct{}{}
		var nested []string
		collectRefs(target, &nested)
		queue = append(queue, nested...)
	}

	if len(reachable) == 0 {
		delete(tree, "definitions")
		return tree
	}
	kept := make(map[string]any, len(reachable))
	for name := range reachable {
		kept[name] = defs[name]
	}
	tree["definitions"] = kept
	return tree
}
