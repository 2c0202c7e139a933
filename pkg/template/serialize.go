package template

import (
	"net/http"

	"github.com/goliatone/go-tplform/pkg/contenttype"
	"github.com/goliatone/go-tplform/pkg/remote"
	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/validation"
)

// Serialized is the plain representation of a compiled Template. It carries
// everything needed to reconstruct the Template without re-running schema
// inference; only the validator is recompiled.
type Serialized struct {
	Title         string              `json:"title,omitempty" yaml:"title,omitempty"`
	Description   string              `json:"description,omitempty" yaml:"description,omitempty"`
	ContentType   string              `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	SourceType    string              `json:"sourceType" yaml:"sourceType"`
	SourceText    string              `json:"sourceText" yaml:"sourceText"`
	SourceHash    string              `json:"sourceHash" yaml:"sourceHash"`
	CleanText     string              `json:"cleanText" yaml:"cleanText"`
	Defaults      map[string]any      `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Partials      map[string]string   `json:"partials,omitempty" yaml:"partials,omitempty"`
	Schema        map[string]any      `json:"schema" yaml:"schema"`
	PropertyOrder []string            `json:"propertyOrder,omitempty" yaml:"propertyOrder,omitempty"`
	HTTPForward   *remote.RequestSpec `json:"httpForward,omitempty" yaml:"httpForward,omitempty"`
	OneOf         []*Serialized       `json:"oneOf,omitempty" yaml:"oneOf,omitempty"`
	AllOf         []*Serialized       `json:"allOf,omitempty" yaml:"allOf,omitempty"`
	AnyOf         []*Serialized       `json:"anyOf,omitempty" yaml:"anyOf,omitempty"`
}

// Serialize flattens the Template, recursively including composed branches.
func (t *Template) Serialize() *Serialized {
	return &Serialized{
		Title:         t.title,
		Description:   t.description,
		ContentType:   t.contentType,
		SourceType:    t.sourceType,
		SourceText:    t.sourceText,
		SourceHash:    t.sourceHash,
		CleanText:     t.cleanText,
		Defaults:      schema.CloneMap(t.defaults),
		Partials:      clonePartials(t.partials),
		Schema:        t.schemaTree.ToMap(),
		PropertyOrder: t.schemaTree.Properties.Names(),
		HTTPForward:   t.forward.Clone(),
		OneOf:         serializeBranches(t.oneOf),
		AllOf:         serializeBranches(t.allOf),
		AnyOf:         serializeBranches(t.anyOf),
	}
}

// FromSerialized reconstructs a Template and recompiles its validator.
// Schema inference does not run again; the serialized schema is trusted.
func FromSerialized(s *Serialized, opts ...Option) (*Template, error) {
	cfg := newConfig(opts)
	return rebuild(s, cfg.client, cfg.strategies)
}

func rebuild(s *Serialized, client *http.Client, strategies *contenttype.Registry) (*Template, error) {
	t := &Template{
		title:       s.Title,
		description: s.Description,
		contentType: s.ContentType,
		sourceType:  s.SourceType,
		sourceText:  s.SourceText,
		sourceHash:  s.SourceHash,
		cleanText:   s.CleanText,
		defaults:    schema.CloneMap(s.Defaults),
		partials:    clonePartials(s.Partials),
		schemaTree:  schema.FromMap(s.Schema, s.PropertyOrder),
		forward:     s.HTTPForward.Clone(),
		client:      client,
		strategies:  strategies,
	}
	var err error
	if t.oneOf, err = rebuildBranches(s.OneOf, client, strategies); err != nil {
		return nil, err
	}
	if t.allOf, err = rebuildBranches(s.AllOf, client, strategies); err != nil {
		return nil, err
	}
	if t.anyOf, err = rebuildBranches(s.AnyOf, client, strategies); err != nil {
		return nil, err
	}

	compiler := validation.NewCompiler(validation.WithHTTPClient(client))
	validator, err := compiler.Compile(t.CombinedSchema())
	if err != nil {
		return nil, err
	}
	t.validator = validator
	return t, nil
}

func serializeBranches(branches []*Template) []*Serialized {
	if len(branches) == 0 {
		return nil
	}
	out := make([]*Serialized, len(branches))
	for i, branch := range branches {
		out[i] = branch.Serialize()
	}
	return out
}

func rebuildBranches(branches []*Serialized, client *http.Client, strategies *contenttype.Registry) ([]*Template, error) {
	if len(branches) == 0 {
		return nil, nil
	}
	out := make([]*Template, len(branches))
	for i, branch := range branches {
		rebuilt, err := rebuild(branch, client, strategies)
		if err != nil {
			return nil, err
		}
		out[i] = rebuilt
	}
	return out, nil
}

func clonePartials(partials map[string]string) map[string]string {
	if len(partials) == 0 {
		return nil
	}
	out := make(map[string]string, len(partials))
	for name, body := range partials {
		out[name] = body
	}
	return out
}
