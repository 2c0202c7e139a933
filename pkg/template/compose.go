package template

import (
	"fmt"

	"github.com/goliatone/go-tplform/pkg/mathexpr"
	"github.com/goliatone/go-tplform/pkg/schema"
)

// CombinedSchema exports the full JSON Schema for the template: its own
// inferred schema plus one standard combinator per non-empty composition
// list, with unreferenced definitions pruned.
func (t *Template) CombinedSchema() map[string]any {
	out := t.schemaTree.ToMap()
	if branches := branchSchemas(t.oneOf); len(branches) > 0 {
		out["oneOf"] = branches
	}
	if branches := branchSchemas(t.allOf); len(branches) > 0 {
		out["allOf"] = branches
	}
	if branches := branchSchemas(t.anyOf); len(branches) > 0 {
		out["anyOf"] = branches
	}
	// A parameterless root still accepts object payloads when composed
	// branches declare parameters.
	if schema.ReadString(out, "type") == "string" {
		for _, key := range []string{"oneOf", "allOf", "anyOf"} {
			if _, ok := out[key]; ok {
				out["type"] = "object"
				break
			}
		}
	}
	// Section-container bookkeeping stays internal, like propertyOrder.
	schema.StripKey(out, "skipTransform")
	return schema.PruneDefinitions(out)
}

// surfaceDefinitionOverrides lifts definition-only overrides of composed
// branch properties into the root schema: a name declared in some branch's
// property set that the root body never references, but the root's
// definitions override, still surfaces at the root level. The walk covers
// the whole sub-template tree.
func surfaceDefinitionOverrides(root *schema.ParameterSchema, fragments map[string]map[string]any, branches []*Template) {
	if len(fragments) == 0 {
		return
	}
	for _, branch := range branches {
		branch.schemaTree.Properties.Range(func(name string, _ map[string]any) bool {
			if root.Properties.Has(name) {
				return true
			}
			frag, ok := fragments[name]
			if !ok {
				return true
			}
			root.Properties.Set(name, schema.CloneMap(frag))
			return true
		})
		surfaceDefinitionOverrides(root, fragments, branch.branches())
	}
	if root.Properties.Len() > 0 && root.Type != "object" {
		root.Type = "object"
	}
}

func branchSchemas(branches []*Template) []any {
	if len(branches) == 0 {
		return nil
	}
	out := make([]any, 0, len(branches))
	for _, branch := range branches {
		combined := branch.CombinedSchema()
		// A parameterless branch collapses to a bare string schema; as a
		// combinator member it would reject every object payload, so it
		// contributes no constraint.
		if schema.ReadString(combined, "type") != "object" {
			continue
		}
		// Branch definitions live in the parent's namespace.
		delete(combined, "definitions")
		out = append(out, combined)
	}
	return out
}

// CombinedParameters folds, in order: every composed branch's own combined
// defaults, the root's type-implied defaults, the root's author defaults,
// and the caller-supplied overrides. Later entries win; arrays are replaced
// wholesale. Arithmetic-expression properties are then evaluated against the
// folded values and spliced in.
func (t *Template) CombinedParameters(params map[string]any) (map[string]any, error) {
	folded := map[string]any{}
	for _, branch := range t.branches() {
		branchParams, err := branch.CombinedParameters(nil)
		if err != nil {
			return nil, err
		}
		folded = foldParams(folded, branchParams)
	}
	folded = foldParams(folded, t.impliedDefaults())
	folded = foldParams(folded, t.defaults)
	folded = foldParams(folded, params)
	if err := t.evalExpressions(folded); err != nil {
		return nil, err
	}
	return folded, nil
}

func (t *Template) branches() []*Template {
	out := make([]*Template, 0, len(t.allOf)+len(t.oneOf)+len(t.anyOf))
	out = append(out, t.allOf...)
	out = append(out, t.oneOf...)
	out = append(out, t.anyOf...)
	return out
}

// impliedDefaults collects declared defaults off the property schemas, in
// property order.
func (t *Template) impliedDefaults() map[string]any {
	out := map[string]any{}
	t.schemaTree.Properties.Range(func(name string, frag map[string]any) bool {
		if value, ok := frag["default"]; ok {
			out[name] = schema.Clone(value)
		}
		return true
	})
	return out
}

// foldParams merges src onto dst into a new map: nested maps merge
// recursively, everything else (arrays included) is replaced.
func foldParams(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	return schema.DeepMerge(dst, src)
}

// evalExpressions runs every mathExpression property against the folded
// values. A property whose operands are not all bound is skipped; if it was
// required the validator reports the gap. Results of earlier expressions are
// visible to later ones.
func (t *Template) evalExpressions(folded map[string]any) error {
	bindings := map[string]float64{}
	for name, value := range folded {
		if n, ok := mathexpr.ToNumber(value); ok {
			bindings[name] = n
		}
	}
	var evalErr error
	t.schemaTree.Properties.Range(func(name string, frag map[string]any) bool {
		source := schema.ReadString(frag, "mathExpression")
		if source == "" {
			return true
		}
		expr, err := mathexpr.Parse(source)
		if err != nil {
			evalErr = fmt.Errorf("template: property %q: %w", name, err)
			return false
		}
		result, err := expr.Eval(bindings)
		if err != nil {
			// Unbound operand: leave the property unset.
			return true
		}
		bindings[name] = result
		if schema.ReadString(frag, "type") == "string" {
			folded[name] = mathexpr.FormatNumber(result)
		} else {
			folded[name] = result
		}
		return true
	})
	return evalErr
}
