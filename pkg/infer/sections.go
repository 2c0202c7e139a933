package infer

import (
	"fmt"

	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/tagstream"
)

var compoundTypes = map[string]struct{}{
	"array":   {},
	"object":  {},
	"boolean": {},
	"string":  {},
	"number":  {},
	"integer": {},
}

// handleSection reduces a section token. The section's declared type decides
// the shape: arrays and objects become containers holding the child
// properties, booleans and strings become a toggle with the children hoisted
// to the parent level as dependent properties.
func (e *engine) handleSection(tok tagstream.Token, acc *accumulator) error {
	child := newAccumulator()
	if err := e.walk(tok.Children, child); err != nil {
		return err
	}

	sectionType, err := e.sectionType(tok)
	if err != nil {
		return err
	}
	if existing := acc.props.Get(tok.Name); existing != nil {
		if existingType := schema.ReadString(existing, "type"); existingType != "" && existingType != sectionType {
			return &ConflictError{Name: tok.Name, Existing: existingType, Declared: sectionType}
		}
	}

	switch sectionType {
	case "array":
		return e.applyArraySection(tok, acc, child)
	case "object":
		return e.applyObjectSection(tok, acc, child)
	case "boolean", "string":
		return e.applyToggleSection(tok, sectionType, acc, child)
	default:
		return fmt.Errorf("%w: %q on section %q", ErrUnsupportedType, sectionType, tok.Name)
	}
}

// sectionType resolves the compound type of a section: the bare annotation
// wins, then the collected type definitions, then the author definition,
// then the array default.
func (e *engine) sectionType(tok tagstream.Token) (string, error) {
	if tok.TypeName != "" {
		if _, ok := compoundTypes[tok.TypeName]; ok {
			return tok.TypeName, nil
		}
		if def, ok := e.typeDefs[tok.TypeName]; ok {
			if t := schema.ReadString(def, "type"); t != "" {
				return t, nil
			}
		}
		return "", fmt.Errorf("%w: %q on section %q", ErrUnknownType, tok.TypeName, tok.Name)
	}
	if def, ok := e.opts.Definitions[tok.Name]; ok {
		if t := schema.ReadString(def, "type"); t != "" {
			return t, nil
		}
	}
	return "array", nil
}

// containerFor seeds the section container from the existing property and
// the author definition, in that order.
func (e *engine) containerFor(name string, acc *accumulator) map[string]any {
	container := map[string]any{}
	if existing := acc.props.Get(name); existing != nil {
		container = schema.CloneMap(existing)
	}
	if author, ok := e.opts.Definitions[name]; ok {
		container = schema.DeepMerge(container, author)
		delete(container, "dependencies")
		delete(container, "template")
	}
	return container
}

func (e *engine) applyArraySection(tok tagstream.Token, acc *accumulator, child *accumulator) error {
	container := e.containerFor(tok.Name, acc)
	container["type"] = "array"

	itemSchema := map[string]any{
		"type":       "object",
		"properties": child.props.ToMap(),
	}
	if required := childRequired(child); len(required) > 0 {
		itemSchema["required"] = toAny(required)
	}
	if existing, ok := container["items"].(map[string]any); ok {
		existingType := schema.ReadString(existing, "type")
		if existingType != "" && existingType != "object" && child.props.Len() > 0 {
			return &ConflictError{Name: tok.Name, Existing: existingType, Declared: "object", Items: true}
		}
		if child.props.Len() == 0 {
			itemSchema = existing
		} else {
			itemSchema = schema.DeepMerge(existing, itemSchema)
		}
	} else if child.props.Len() == 0 {
		itemSchema = map[string]any{"type": "string"}
	}
	container["items"] = itemSchema
	container["skipTransform"] = true

	acc.props.Set(tok.Name, container)
	acc.setRequired(tok.Name, requiredFor(container))
	return nil
}

func (e *engine) applyObjectSection(tok tagstream.Token, acc *accumulator, child *accumulator) error {
	container := e.containerFor(tok.Name, acc)
	container["type"] = "object"

	props := map[string]any{}
	if existing, ok := container["properties"].(map[string]any); ok {
		props = existing
	}
	child.props.Range(func(name string, frag map[string]any) bool {
		if prior, ok := props[name].(map[string]any); ok {
			props[name] = schema.DeepMerge(prior, frag)
		} else {
			props[name] = schema.CloneMap(frag)
		}
		return true
	})
	container["properties"] = props
	if required := childRequired(child); len(required) > 0 {
		container["required"] = toAny(schema.Dedupe(append(schema.ReadStringSlice(container, "required"), required...)))
	}
	container["skipTransform"] = true

	acc.props.Set(tok.Name, container)
	acc.setRequired(tok.Name, requiredFor(container))
	return nil
}

// applyToggleSection hoists the children next to the toggle and records that
// they only matter when the toggle is present.
func (e *engine) applyToggleSection(tok tagstream.Token, sectionType string, acc *accumulator, child *accumulator) error {
	before := make(map[string]struct{}, acc.props.Len())
	acc.props.Range(func(name string, _ map[string]any) bool {
		before[name] = struct{}{}
		return true
	})

	e.mergeSchema(acc, child.toSchema())
	child.props.Range(func(name string, _ map[string]any) bool {
		if _, existed := before[name]; existed {
			return true
		}
		if _, explicit := e.opts.ExplicitDependencies[name]; !explicit {
			acc.addDependency(name, tok.Name)
		}
		return true
	})

	toggle := e.containerFor(tok.Name, acc)
	if toggle["type"] == nil {
		toggle["type"] = sectionType
	}
	acc.props.Set(tok.Name, toggle)
	acc.setRequired(tok.Name, requiredFor(toggle))
	return nil
}

// handleInverted treats the section name as a boolean toggle whose children
// render when the toggle is absent or falsy. Children hoist like a string
// toggle, but additionally record an inverted dependency so downstream
// consumers know the polarity.
func (e *engine) handleInverted(tok tagstream.Token, acc *accumulator) error {
	child := newAccumulator()
	if err := e.walk(tok.Children, child); err != nil {
		return err
	}

	before := make(map[string]struct{}, acc.props.Len())
	acc.props.Range(func(name string, _ map[string]any) bool {
		before[name] = struct{}{}
		return true
	})

	e.mergeSchema(acc, child.toSchema())
	child.props.Range(func(name string, frag map[string]any) bool {
		if _, existed := before[name]; existed {
			return true
		}
		if _, explicit := e.opts.ExplicitDependencies[name]; explicit {
			return true
		}
		acc.addDependency(name, tok.Name)
		merged := acc.props.Get(name)
		inverted := schema.ReadStringSlice(merged, "invertDependency")
		merged["invertDependency"] = toAny(schema.Dedupe(append(inverted, tok.Name)))
		return true
	})

	toggle := e.containerFor(tok.Name, acc)
	if toggle["type"] == nil {
		toggle["type"] = "boolean"
	}
	acc.props.Set(tok.Name, toggle)
	acc.forbidRequired(tok.Name)
	return nil
}

func childRequired(child *accumulator) []string {
	out := make([]string, 0, len(child.required))
	for _, name := range child.required {
		frag := child.props.Get(name)
		if frag != nil {
			if _, hasDefault := frag["default"]; hasDefault {
				continue
			}
		}
		out = append(out, name)
	}
	return out
}

func toAny(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}
