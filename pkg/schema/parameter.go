package schema

import "sort"

// ParameterSchema is the derived contract for one template: an object-typed
// schema with ordered properties, required names, presence dependencies and
// reusable definitions. An empty template collapses to a bare string type.
type ParameterSchema struct {
	Type         string
	Title        string
	Description  string
	Properties   *Properties
	Required     []string
	Dependencies map[string][]string
	Definitions  map[string]any
}

// NewParameterSchema returns an empty object-typed schema.
func NewParameterSchema() *ParameterSchema {
	return &ParameterSchema{
		Type:       "object",
		Properties: NewProperties(),
	}
}

// Clone deep-copies the schema.
func (s *ParameterSchema) Clone() *ParameterSchema {
	if s == nil {
		return nil
	}
	out := &ParameterSchema{
		Type:        s.Type,
		Title:       s.Title,
		Description: s.Description,
		Properties:  s.Properties.Clone(),
		Required:    Dedupe(s.Required),
	}
	if len(s.Dependencies) > 0 {
		out.Dependencies = make(map[string][]string, len(s.Dependencies))
		for name, deps := range s.Dependencies {
			out.Dependencies[name] = Dedupe(deps)
		}
	}
	if len(s.Definitions) > 0 {
		out.Definitions = CloneMap(s.Definitions)
	}
	return out
}

// ToMap renders the schema as a plain JSON-Schema-shaped map.
func (s *ParameterSchema) ToMap() map[string]any {
	out := map[string]any{"type": s.Type}
	if s.Title != "" {
		out["title"] = s.Title
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Properties.Len() > 0 {
		out["properties"] = s.Properties.ToMap()
	}
	if len(s.Required) > 0 {
		out["required"] = toAnySlice(s.Required)
	}
	if len(s.Dependencies) > 0 {
		deps := make(map[string]any, len(s.Dependencies))
		for name, list := range s.Dependencies {
			deps[name] = toAnySlice(list)
		}
		out["dependencies"] = deps
	}
	if len(s.Definitions) > 0 {
		out["definitions"] = CloneMap(s.Definitions)
	}
	return out
}

// FromMap rebuilds a ParameterSchema from its plain-map form. propertyOrder
// restores the ordered property container; names missing from it are
// appended in map-iteration-independent sorted order via the provided list.
func FromMap(payload map[string]any, propertyOrder []string) *ParameterSchema {
	out := NewParameterSchema()
	if payload == nil {
		return out
	}
	if t := ReadString(payload, "type"); t != "" {
		out.Type = t
	}
	out.Title = ReadString(payload, "title")
	out.Description = ReadString(payload, "description")

	props := ReadMap(payload, "properties")
	for _, name := range propertyOrder {
		if frag, ok := props[name].(map[string]any); ok {
			out.Properties.Set(name, CloneMap(frag))
		}
	}
	var rest []string
	for name := range props {
		if !out.Properties.Has(name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		if frag, ok := props[name].(map[string]any); ok {
			out.Properties.Set(name, CloneMap(frag))
		}
	}

	out.Required = ReadStringSlice(payload, "required")
	if deps := ReadMap(payload, "dependencies"); len(deps) > 0 {
		out.Dependencies = make(map[string][]string, len(deps))
		for name := range deps {
			out.Dependencies[name] = ReadStringSlice(deps, name)
		}
	}
	if defs := ReadMap(payload, "definitions"); len(defs) > 0 {
		out.Definitions = CloneMap(defs)
	}
	return out
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
