package template

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-tplform/pkg/infer"
	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/tagstream"
)

// definitionRegistry is the compiled form of the author's definitions map:
// plain schema fragments pass through, entries with an embedded sub-template
// body become named partials (schema plus cleaned body), and any explicit
// dependency lists are captured so they win over inferred ones.
type definitionRegistry struct {
	fragments      map[string]map[string]any
	partialSchemas map[string]*schema.ParameterSchema
	bodies         map[string]string
	explicitDeps   map[string][]string
}

// compileDefinitions walks the definitions in declaration order so a partial
// can reference partials declared before it.
func compileDefinitions(cfg *config) (*definitionRegistry, error) {
	reg := &definitionRegistry{
		fragments:      map[string]map[string]any{},
		partialSchemas: map[string]*schema.ParameterSchema{},
		bodies:         map[string]string{},
		explicitDeps:   map[string][]string{},
	}
	for _, name := range definitionNames(cfg) {
		entry, ok := cfg.definitions[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("template: definition %q must be an object", name)
		}
		if body := schema.ReadString(entry, "template"); body != "" {
			if err := reg.compilePartial(cfg, name, body); err != nil {
				return nil, err
			}
			continue
		}
		fragment := schema.CloneMap(entry)
		if deps := schema.ReadStringSlice(fragment, "dependencies"); len(deps) > 0 {
			reg.explicitDeps[name] = deps
		}
		delete(fragment, "dependencies")
		reg.fragments[name] = fragment
	}
	return reg, nil
}

func (r *definitionRegistry) compilePartial(cfg *config, name, body string) error {
	tokens, err := tagstream.Tokenize(body)
	if err != nil {
		return fmt.Errorf("template: partial %q: %w", name, err)
	}
	inferred, err := infer.Infer(tokens, infer.Options{
		TypeSchemas: cfg.typeSchemas,
		DataFiles:   cfg.dataFiles,
		Partials:    r.partialSchemas,
	})
	if err != nil {
		return fmt.Errorf("template: partial %q: %w", name, err)
	}
	r.partialSchemas[name] = inferred
	r.bodies[name] = tagstream.Clean(body)
	return nil
}

// definitionNames yields the declared order first, then any names the order
// list missed, sorted so compilation stays deterministic.
func definitionNames(cfg *config) []string {
	seen := make(map[string]struct{}, len(cfg.defOrder))
	names := make([]string, 0, len(cfg.definitions))
	for _, name := range cfg.defOrder {
		if _, ok := cfg.definitions[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	var rest []string
	for name := range cfg.definitions {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
