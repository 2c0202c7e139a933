// Package template is the root unit of the pipeline: it compiles annotated
// tag-based text (or a structured document) into a parameter schema, a
// compiled validator and a renderer. A Template is immutable once built and
// safe for concurrent read-only use.
package template

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-tplform/pkg/contenttype"
	"github.com/goliatone/go-tplform/pkg/infer"
	"github.com/goliatone/go-tplform/pkg/provider"
	"github.com/goliatone/go-tplform/pkg/remote"
	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/tagstream"
	"github.com/goliatone/go-tplform/pkg/validation"
)

// Source types recorded in provenance.
const (
	SourceTag      = "tag"
	SourceDocument = "document"
)

// Template holds the compiled form of one annotated template: its schema,
// validator, cleaned body, partial bodies and composed sub-templates.
type Template struct {
	title       string
	description string
	contentType string

	sourceType string
	sourceText string
	sourceHash string
	cleanText  string

	defaults    map[string]any
	partials    map[string]string
	schemaTree  *schema.ParameterSchema
	validator   *validation.Validator
	forward     *remote.RequestSpec
	oneOf       []*Template
	allOf       []*Template
	anyOf       []*Template
	client      *http.Client
	strategies  *contenttype.Registry
	typeSchemas map[string]map[string]any
	dataFiles   map[string]string
}

type config struct {
	title          string
	contentType    string
	defaults       map[string]any
	definitions    map[string]any
	defOrder       []string
	typeSchemas    map[string]map[string]any
	dataFiles      map[string]string
	schemaProvider provider.SchemaProvider
	dataProvider   provider.DataProvider
	forward        *remote.RequestSpec
	oneOf          []*Template
	allOf          []*Template
	anyOf          []*Template
	client         *http.Client
	strategies     *contenttype.Registry
	templates      provider.TemplateProvider
}

func (c *config) branches() []*Template {
	out := make([]*Template, 0, len(c.allOf)+len(c.oneOf)+len(c.anyOf))
	out = append(out, c.allOf...)
	out = append(out, c.oneOf...)
	out = append(out, c.anyOf...)
	return out
}

// Option customises template construction.
type Option func(*config)

// WithTitle sets the template title.
func WithTitle(title string) Option {
	return func(c *config) { c.title = title }
}

// WithContentType selects the transform/merge/post-process strategy triple.
func WithContentType(contentType string) Option {
	return func(c *config) { c.contentType = contentType }
}

// WithDefaults supplies author default parameters.
func WithDefaults(defaults map[string]any) Option {
	return func(c *config) { c.defaults = defaults }
}

// WithDefinitions supplies author definitions: schema fragments, or
// sub-template bodies carrying a "template" key that compile into partials.
// Declaration order drives property ordering; pass it when it matters.
func WithDefinitions(definitions map[string]any, order []string) Option {
	return func(c *config) {
		c.definitions = definitions
		c.defOrder = order
	}
}

// WithTypeSchemas supplies pre-parsed type schema documents keyed by name.
func WithTypeSchemas(typeSchemas map[string]map[string]any) Option {
	return func(c *config) { c.typeSchemas = typeSchemas }
}

// WithDataFiles supplies raw data blobs consumed by dataFile properties.
func WithDataFiles(dataFiles map[string]string) Option {
	return func(c *config) { c.dataFiles = dataFiles }
}

// WithSchemaProvider gathers type schemas from a provider at build time.
func WithSchemaProvider(p provider.SchemaProvider) Option {
	return func(c *config) { c.schemaProvider = p }
}

// WithDataProvider gathers data blobs from a provider at build time.
func WithDataProvider(p provider.DataProvider) Option {
	return func(c *config) { c.dataProvider = p }
}

// WithTemplateProvider overrides where cross-file references are fetched
// from during structured loading.
func WithTemplateProvider(p provider.TemplateProvider) Option {
	return func(c *config) { c.templates = p }
}

// WithHTTPForward configures the endpoint rendered output is forwarded to.
func WithHTTPForward(spec *remote.RequestSpec) Option {
	return func(c *config) { c.forward = spec }
}

// WithHTTPClient sets the client used for property fetches and forwarding.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.client = client
		}
	}
}

// WithStrategies overrides the content-type strategy registry.
func WithStrategies(registry *contenttype.Registry) Option {
	return func(c *config) {
		if registry != nil {
			c.strategies = registry
		}
	}
}

// FromString compiles annotated tag-based text into a Template. This entry
// point carries no composition lists and no cross-file references; use Load
// for structured documents.
func FromString(ctx context.Context, text string, opts ...Option) (*Template, error) {
	cfg := newConfig(opts)
	if err := cfg.gather(ctx); err != nil {
		return nil, err
	}
	return buildFrom(cfg, SourceTag, text, text)
}

func newConfig(opts []Option) *config {
	cfg := &config{
		client:     remote.DefaultClient,
		strategies: contenttype.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// gather resolves providers into the type-schema and data-file maps.
// Explicitly supplied entries win over fetched ones.
func (c *config) gather(ctx context.Context) error {
	if c.schemaProvider != nil {
		fetched, err := provider.GatherAll(ctx, c.schemaProvider)
		if err != nil {
			return fmt.Errorf("template: gather type schemas: %w", err)
		}
		merged := make(map[string]map[string]any, len(fetched)+len(c.typeSchemas))
		for name, text := range fetched {
			doc, _, err := schema.DecodeDocument([]byte(text))
			if err != nil {
				return fmt.Errorf("template: parse type schema %q: %w", name, err)
			}
			merged[name] = doc
		}
		for name, doc := range c.typeSchemas {
			merged[name] = doc
		}
		c.typeSchemas = merged
	}
	if c.dataProvider != nil {
		fetched, err := provider.GatherAll(ctx, c.dataProvider)
		if err != nil {
			return fmt.Errorf("template: gather data files: %w", err)
		}
		for name, blob := range c.dataFiles {
			fetched[name] = blob
		}
		c.dataFiles = fetched
	}
	return nil
}

// buildFrom runs the full compile: partial registry, schema inference,
// validator compilation and provenance. sourceText is the provenance input,
// which for document loads is the whole document rather than the body.
func buildFrom(cfg *config, sourceType, text, sourceText string) (*Template, error) {
	if sourceText == "" {
		sourceText = text
	}
	tokens, err := tagstream.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	reg, err := compileDefinitions(cfg)
	if err != nil {
		return nil, err
	}

	inferred, err := infer.Infer(tokens, infer.Options{
		TypeSchemas:          cfg.typeSchemas,
		DataFiles:            cfg.dataFiles,
		Partials:             reg.partialSchemas,
		Definitions:          reg.fragments,
		DefinitionOrder:      definitionNames(cfg),
		ExplicitDependencies: reg.explicitDeps,
	})
	if err != nil {
		return nil, err
	}
	inferred.Title = cfg.title
	inferred.Description = firstComment(tokens)
	inferred.Definitions = flattenTypeDefinitions(cfg.typeSchemas)
	surfaceDefinitionOverrides(inferred, reg.fragments, cfg.branches())

	t := &Template{
		title:       cfg.title,
		description: inferred.Description,
		contentType: cfg.contentType,
		sourceType:  sourceType,
		sourceText:  sourceText,
		sourceHash:  hashSource(sourceType, sourceText),
		cleanText:   tagstream.Clean(text),
		defaults:    cfg.defaults,
		partials:    reg.bodies,
		schemaTree:  inferred,
		forward:     cfg.forward,
		oneOf:       cfg.oneOf,
		allOf:       cfg.allOf,
		anyOf:       cfg.anyOf,
		client:      cfg.client,
		strategies:  cfg.strategies,
		typeSchemas: cfg.typeSchemas,
		dataFiles:   cfg.dataFiles,
	}

	compiler := validation.NewCompiler(validation.WithHTTPClient(t.client))
	validator, err := compiler.Compile(t.CombinedSchema())
	if err != nil {
		return nil, err
	}
	t.validator = validator
	return t, nil
}

// flattenTypeDefinitions pools every loaded type schema's definitions into
// one $ref namespace. Unreferenced entries are pruned from the combined
// schema later.
func flattenTypeDefinitions(typeSchemas map[string]map[string]any) map[string]any {
	if len(typeSchemas) == 0 {
		return nil
	}
	out := map[string]any{}
	for _, doc := range typeSchemas {
		for name, def := range schema.ReadMap(doc, "definitions") {
			out[name] = schema.Clone(def)
		}
	}
	return out
}

func firstComment(tokens []tagstream.Token) string {
	for _, tok := range tokens {
		if tok.Kind == tagstream.KindComment {
			return strings.TrimSpace(tok.Text)
		}
	}
	return ""
}

func hashSource(sourceType, text string) string {
	sum := sha256.Sum256([]byte(sourceType + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Title returns the template title.
func (t *Template) Title() string { return t.title }

// Description returns the description derived from the first comment token.
func (t *Template) Description() string { return t.description }

// ContentType returns the declared content type.
func (t *Template) ContentType() string { return t.contentType }

// SourceType reports how the template was loaded.
func (t *Template) SourceType() string { return t.sourceType }

// SourceText returns the raw body the template was built from.
func (t *Template) SourceText() string { return t.sourceText }

// SourceHash is the content digest computed once at load. It identifies
// exactly one (sourceType, sourceText) pair and is never recomputed.
func (t *Template) SourceHash() string { return t.sourceHash }

// Schema returns the template's own parameter schema, before composition.
func (t *Template) Schema() *schema.ParameterSchema { return t.schemaTree }

// OneOf returns the composed oneOf branches.
func (t *Template) OneOf() []*Template { return t.oneOf }

// AllOf returns the composed allOf branches.
func (t *Template) AllOf() []*Template { return t.allOf }

// AnyOf returns the composed anyOf branches.
func (t *Template) AnyOf() []*Template { return t.anyOf }

// Validator exposes the compiled parameter validator.
func (t *Template) Validator() *validation.Validator { return t.validator }
