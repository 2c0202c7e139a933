package schema

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Properties is an insertion-ordered map from property name to schema
// fragment. Ordering is load-bearing: it drives form field order and the
// deterministic output the inference engine guarantees.
type Properties struct {
	names     []string
	fragments map[string]map[string]any
}

// NewProperties returns an empty ordered property map.
func NewProperties() *Properties {
	return &Properties{fragments: make(map[string]map[string]any)}
}

// Set stores a fragment under name. New names append to the order; existing
// names keep their original position.
func (p *Properties) Set(name string, fragment map[string]any) {
	if _, exists := p.fragments[name]; !exists {
		p.names = append(p.names, name)
	}
	p.fragments[name] = fragment
}

// Get returns the fragment for name, or nil when absent.
func (p *Properties) Get(name string) map[string]any {
	if p == nil {
		return nil
	}
	return p.fragments[name]
}

// Has reports whether name is present.
func (p *Properties) Has(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.fragments[name]
	return ok
}

// Delete removes name, preserving the relative order of the rest.
func (p *Properties) Delete(name string) {
	if _, ok := p.fragments[name]; !ok {
		return
	}
	delete(p.fragments, name)
	for i, n := range p.names {
		if n == name {
			p.names = append(p.names[:i], p.names[i+1:]...)
			break
		}
	}
}

// Names returns the property names in order.
func (p *Properties) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

// Range calls fn for every property in order, stopping early on false.
func (p *Properties) Range(fn func(name string, fragment map[string]any) bool) {
	if p == nil {
		return
	}
	for _, name := range p.names {
		if !fn(name, p.fragments[name]) {
			return
		}
	}
}

// Clone deep-copies the container and every fragment.
func (p *Properties) Clone() *Properties {
	out := NewProperties()
	if p == nil {
		return out
	}
	for _, name := range p.names {
		out.Set(name, CloneMap(p.fragments[name]))
	}
	return out
}

// SortStable reorders properties by the given rank function; equal ranks keep
// their current relative order.
func (p *Properties) SortStable(rank func(name string) int) {
	if p == nil {
		return
	}
	sort.SliceStable(p.names, func(i, j int) bool {
		return rank(p.names[i]) < rank(p.names[j])
	})
}

// ToMap converts the container to a plain map for schema export. Order is
// carried separately by Names.
func (p *Properties) ToMap() map[string]any {
	if p == nil || len(p.names) == 0 {
		return nil
	}
	out := make(map[string]any, len(p.names))
	for _, name := range p.names {
		out[name] = Clone(p.fragments[name])
	}
	return out
}

// MarshalJSON emits the properties as a JSON object in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(p.fragments[name])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
