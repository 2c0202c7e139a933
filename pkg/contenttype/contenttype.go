// Package contenttype selects how rendered output is shaped: a per-field
// transform applied before substitution, a merge combining rendered
// fragments, and a post-process pass over the merged text. Strategies are
// keyed by MIME-like content type.
package contenttype

import (
	"fmt"
	"strings"
	"sync"
)

// Strategy is one transform/merge/post-process triple. Any hook may be nil,
// meaning identity behaviour.
type Strategy struct {
	Name string

	// TransformField converts one parameter value into the form substituted
	// into the template. The property fragment provides type and format.
	TransformField func(value any, property map[string]any) (any, error)

	// Merge combines non-empty rendered fragments left to right.
	Merge func(fragments []string) (string, error)

	// PostProcess runs over the merged output.
	PostProcess func(output string) (string, error)
}

// Transform applies the per-field hook, defaulting to identity.
func (s Strategy) Transform(value any, property map[string]any) (any, error) {
	if s.TransformField == nil {
		return value, nil
	}
	return s.TransformField(value, property)
}

// MergeFragments applies the merge hook after dropping empty fragments.
func (s Strategy) MergeFragments(fragments []string) (string, error) {
	kept := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		kept = append(kept, fragment)
	}
	if len(kept) == 0 {
		return "", nil
	}
	if len(kept) == 1 {
		return kept[0], nil
	}
	if s.Merge == nil {
		return strings.Join(kept, "\n"), nil
	}
	return s.Merge(kept)
}

// Finalize applies the post-process hook, defaulting to identity.
func (s Strategy) Finalize(output string) (string, error) {
	if s.PostProcess == nil {
		return output, nil
	}
	return s.PostProcess(output)
}

// Registry stores strategies by content type with duplication safeguards.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry pre-populated with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.MustRegister(Plain())
	r.MustRegister(JSON())
	yaml := YAML()
	r.MustRegister(yaml)
	alias := yaml
	alias.Name = "text/yaml"
	r.MustRegister(alias)
	r.MustRegister(HTML())
	return r
}

// Register adds a strategy under its name. Duplicates return an error.
func (r *Registry) Register(strategy Strategy) error {
	name := Normalize(strategy.Name)
	if name == "" {
		return fmt.Errorf("contenttype: strategy name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("contenttype: strategy %q already registered", name)
	}
	r.strategies[name] = strategy
	return nil
}

// MustRegister panics on registration failure. Useful for init-time wiring.
func (r *Registry) MustRegister(strategy Strategy) {
	if err := r.Register(strategy); err != nil {
		panic(err)
	}
}

// Resolve returns the strategy for a content type, falling back to plain
// text for unknown or empty types. MIME parameters are ignored.
func (r *Registry) Resolve(contentType string) Strategy {
	name := Normalize(contentType)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if strategy, ok := r.strategies[name]; ok {
		return strategy
	}
	return r.strategies["text/plain"]
}

// Normalize lowercases a content type and strips MIME parameters.
func Normalize(contentType string) string {
	name := strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.IndexByte(name, ';'); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}
	return name
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry with the built-in strategies.
func Default() *Registry { return defaultRegistry }
