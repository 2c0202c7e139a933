// Package infer derives a parameter schema from a parsed tag stream. It is
// the heart of the pipeline: a recursive tree reduction that accumulates
// properties, required names and presence dependencies while resolving type
// annotations against externally supplied type schemas, data blobs and
// previously compiled partials.
package infer

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-tplform/pkg/mathexpr"
	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/tagstream"
)

// Options carries the externally supplied inputs of one inference run. All
// maps are read-only for the duration of the run.
type Options struct {
	// TypeSchemas maps schema source names to parsed schema documents, each
	// expected to carry a "definitions" map.
	TypeSchemas map[string]map[string]any

	// DataFiles maps data blob names to their raw contents.
	DataFiles map[string]string

	// Partials maps partial names to their previously inferred schemas.
	Partials map[string]*schema.ParameterSchema

	// Definitions holds the author-supplied property fragments; they win
	// over anything resolved from type schemas or primitive defaults.
	Definitions map[string]map[string]any

	// DefinitionOrder is the declaration order of Definitions; a property's
	// index here becomes its propertyOrder.
	DefinitionOrder []string

	// ExplicitDependencies are dependency lists the author declared on raw
	// definition fragments. They suppress the implicit dependencies the
	// engine would otherwise record and win in the final schema.
	ExplicitDependencies map[string][]string
}

const defaultPropertyOrder = 1000

// Infer reduces a token tree into a parameter schema. Inference from
// identical inputs is deterministic.
func Infer(tokens []tagstream.Token, opts Options) (*schema.ParameterSchema, error) {
	e := &engine{opts: opts, typeDefs: collectTypeDefs(opts.TypeSchemas)}
	acc := newAccumulator()
	if err := e.walk(tokens, acc); err != nil {
		return nil, err
	}
	return e.finalize(acc), nil
}

type engine struct {
	opts     Options
	typeDefs map[string]map[string]any
}

// collectTypeDefs flattens the definitions of every loaded type schema into
// one lookup, visiting schemas in name order so collisions resolve
// deterministically.
func collectTypeDefs(typeSchemas map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	names := make([]string, 0, len(typeSchemas))
	for name := range typeSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		defs := schema.ReadMap(typeSchemas[name], "definitions")
		defNames := make([]string, 0, len(defs))
		for defName := range defs {
			defNames = append(defNames, defName)
		}
		sort.Strings(defNames)
		for _, defName := range defNames {
			if frag, ok := defs[defName].(map[string]any); ok {
				out[defName] = frag
			}
		}
	}
	return out
}

type accumulator struct {
	props         *schema.Properties
	required      []string
	requiredSet   map[string]struct{}
	neverRequired map[string]struct{}
	deps          map[string][]string
}

func newAccumulator() *accumulator {
	return &accumulator{
		props:         schema.NewProperties(),
		requiredSet:   make(map[string]struct{}),
		neverRequired: make(map[string]struct{}),
		deps:          make(map[string][]string),
	}
}

func (a *accumulator) setRequired(name string, required bool) {
	if _, never := a.neverRequired[name]; never {
		required = false
	}
	_, present := a.requiredSet[name]
	if required && !present {
		a.requiredSet[name] = struct{}{}
		a.required = append(a.required, name)
	}
	if !required && present {
		delete(a.requiredSet, name)
		for i, r := range a.required {
			if r == name {
				a.required = append(a.required[:i], a.required[i+1:]...)
				break
			}
		}
	}
}

func (a *accumulator) forbidRequired(name string) {
	a.neverRequired[name] = struct{}{}
	a.setRequired(name, false)
}

func (a *accumulator) addDependency(name, dep string) {
	a.deps[name] = append(a.deps[name], dep)
}

func (a *accumulator) toSchema() *schema.ParameterSchema {
	return &schema.ParameterSchema{
		Type:         "object",
		Properties:   a.props,
		Required:     a.required,
		Dependencies: a.deps,
	}
}

func (e *engine) walk(tokens []tagstream.Token, acc *accumulator) error {
	for _, tok := range tokens {
		switch tok.Kind {
		case tagstream.KindText, tagstream.KindComment:
			// Ignored: comments surface as the template description at a
			// higher layer.
		case tagstream.KindVariable:
			if err := e.handleVariable(tok, acc); err != nil {
				return err
			}
		case tagstream.KindPartial:
			if err := e.handlePartial(tok, acc); err != nil {
				return err
			}
		case tagstream.KindSection:
			if err := e.handleSection(tok, acc); err != nil {
				return err
			}
		case tagstream.KindInverted:
			if err := e.handleInverted(tok, acc); err != nil {
				return err
			}
		default:
			return fmt.Errorf("infer: unexpected token kind %v", tok.Kind)
		}
	}
	return nil
}

func (e *engine) handleVariable(tok tagstream.Token, acc *accumulator) error {
	_, hasAuthor := e.opts.Definitions[tok.Name]
	if acc.props.Has(tok.Name) && tok.SchemaSource == "" && tok.TypeName == "" && !hasAuthor {
		// Repeated bare reference to an already declared property.
		return nil
	}

	frag, err := e.resolveFragment(tok)
	if err != nil {
		return err
	}
	if author, ok := e.opts.Definitions[tok.Name]; ok {
		frag = schema.DeepMerge(frag, author)
		delete(frag, "dependencies")
		delete(frag, "template")
	}

	if schema.ReadString(frag, "format") == "info" {
		if _, ok := frag["const"]; !ok {
			frag["const"] = ""
		}
	}
	if _, ok := frag["mathExpression"]; ok {
		if err := e.applyMathExpression(tok.Name, frag, acc); err != nil {
			return err
		}
	}
	if _, ok := frag["dataFile"]; ok {
		if err := e.applyDataFile(frag); err != nil {
			return err
		}
	}

	acc.props.Set(tok.Name, frag)
	acc.setRequired(tok.Name, requiredFor(frag))
	return nil
}

// resolveFragment produces the base property fragment for a variable token:
// from the named type schema when a schema source is given, otherwise from
// the primitive defaults or the collected type definitions.
func (e *engine) resolveFragment(tok tagstream.Token) (map[string]any, error) {
	if tok.SchemaSource != "" {
		typeSchema, ok := e.opts.TypeSchemas[tok.SchemaSource]
		if !ok {
			return nil, fmt.Errorf("%w: %q referenced by %q", ErrUnknownSchema, tok.SchemaSource, tok.Name)
		}
		defs := schema.ReadMap(typeSchema, "definitions")
		frag, ok := defs[tok.TypeName].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q in schema %q", ErrUnknownType, tok.TypeName, tok.SchemaSource)
		}
		return schema.CloneMap(frag), nil
	}

	typeName := tok.TypeName
	if typeName == "" {
		typeName = "string"
	}
	if frag := primitiveFragment(typeName); frag != nil {
		return frag, nil
	}
	if frag, ok := e.typeDefs[typeName]; ok {
		return schema.CloneMap(frag), nil
	}
	return nil, fmt.Errorf("%w: %q on %q", ErrUnknownType, typeName, tok.Name)
}

func primitiveFragment(typeName string) map[string]any {
	switch typeName {
	case "string", "number", "integer", "boolean", "object":
		return map[string]any{"type": typeName}
	case "array":
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case "text":
		return map[string]any{"type": "string", "format": "text"}
	case "hidden":
		return map[string]any{"type": "string", "format": "hidden"}
	default:
		return nil
	}
}

// applyMathExpression hides the computed property and pulls every identifier
// the expression references into the schema as a new property. Expressions
// only reach back to already-known properties or collected type definitions,
// never forward.
func (e *engine) applyMathExpression(name string, frag map[string]any, acc *accumulator) error {
	source := schema.ReadString(frag, "mathExpression")
	expr, err := mathexpr.Parse(source)
	if err != nil {
		return fmt.Errorf("infer: property %q: %w", name, err)
	}
	if schema.ReadString(frag, "format") == "" {
		frag["format"] = "hidden"
	}
	for _, ident := range expr.Vars() {
		if ident == name || acc.props.Has(ident) {
			continue
		}
		var pulled map[string]any
		if def, ok := e.typeDefs[ident]; ok {
			pulled = schema.CloneMap(def)
		} else {
			pulled = map[string]any{"type": "number"}
		}
		acc.props.Set(ident, pulled)
		acc.setRequired(ident, requiredFor(pulled))
	}
	return nil
}

// applyDataFile resolves the named blob into the property default and drops
// the dataFile bookkeeping keys from the fragment.
func (e *engine) applyDataFile(frag map[string]any) error {
	ref := schema.ReadString(frag, "dataFile")
	blob, ok := e.opts.DataFiles[ref]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDataFile, ref)
	}
	if schema.ReadBool(frag, "base64encode") {
		blob = base64.StdEncoding.EncodeToString([]byte(blob))
	} else if schema.ReadBool(frag, "base64decode") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
		if err != nil {
			return fmt.Errorf("infer: decode data file %q: %w", ref, err)
		}
		blob = string(decoded)
	}
	if schema.ReadString(frag, "format") == "" {
		frag["format"] = "hidden"
	}
	frag["default"] = blob
	delete(frag, "dataFile")
	delete(frag, "base64encode")
	delete(frag, "base64decode")
	return nil
}

func (e *engine) handlePartial(tok tagstream.Token, acc *accumulator) error {
	partial, ok := e.opts.Partials[tok.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPartial, tok.Name)
	}
	e.mergeSchema(acc, partial)
	for _, name := range partial.Required {
		acc.setRequired(name, true)
	}
	return nil
}

// mergeSchema applies the shared merge rule: source properties that would
// narrow an existing array or string property to boolean are dropped, the
// survivors are shallow-assigned, and dependencies are deep-merged.
func (e *engine) mergeSchema(acc *accumulator, src *schema.ParameterSchema) {
	src.Properties.Range(func(name string, frag map[string]any) bool {
		if dst := acc.props.Get(name); dst != nil {
			dstType := schema.ReadString(dst, "type")
			if (dstType == "array" || dstType == "string") && schema.ReadString(frag, "type") == "boolean" {
				return true
			}
		}
		acc.props.Set(name, schema.CloneMap(frag))
		return true
	})
	for name, deps := range src.Dependencies {
		for _, dep := range deps {
			acc.addDependency(name, dep)
		}
	}
}

func requiredFor(frag map[string]any) bool {
	switch schema.ReadString(frag, "format") {
	case "hidden", "info":
		return false
	}
	if _, ok := frag["mathExpression"]; ok {
		return false
	}
	if _, ok := frag["dataFile"]; ok {
		return false
	}
	if _, ok := frag["default"]; ok {
		return false
	}
	return true
}

func (e *engine) finalize(acc *accumulator) *schema.ParameterSchema {
	if acc.props.Len() == 0 {
		// A template with no structured parameters collapses to bare text.
		return &schema.ParameterSchema{Type: "string", Properties: schema.NewProperties()}
	}

	orderIndex := make(map[string]int, len(e.opts.DefinitionOrder))
	for idx, name := range e.opts.DefinitionOrder {
		orderIndex[name] = idx
	}
	acc.props.SortStable(func(name string) int {
		if order, ok := readInt(acc.props.Get(name), "propertyOrder"); ok {
			return order
		}
		if idx, ok := orderIndex[name]; ok {
			return idx
		}
		return defaultPropertyOrder
	})
	acc.props.Range(func(name string, frag map[string]any) bool {
		delete(frag, "propertyOrder")
		return true
	})

	// Explicit author dependencies win over everything the walk recorded.
	for name, deps := range e.opts.ExplicitDependencies {
		if acc.props.Has(name) {
			acc.deps[name] = append([]string(nil), deps...)
		}
	}

	out := acc.toSchema()
	out.Required = schema.Dedupe(out.Required)
	for _, name := range out.Required {
		delete(out.Dependencies, name)
	}
	for name, deps := range out.Dependencies {
		out.Dependencies[name] = schema.Dedupe(deps)
	}
	if len(out.Dependencies) == 0 {
		out.Dependencies = nil
	}
	return out
}

func readInt(frag map[string]any, key string) (int, bool) {
	if frag == nil {
		return 0, false
	}
	switch v := frag[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
