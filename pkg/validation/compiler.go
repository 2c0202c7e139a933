// Package validation compiles parameter schemas into validators. The heavy
// lifting is delegated to santhosh-tekuri/jsonschema; this package registers
// the domain string formats, wires network $ref resolution, and shapes
// validation failures into structured errors.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// The rendering-hint formats are not string constraints; the validator
// accepts any value for them.
var domainFormats = []string{"text", "hidden", "password", "info"}

const inlineSchemaURL = "tplform:///parameters.json"

// Compiler turns schema maps into Validators.
type Compiler struct {
	client       *http.Client
	draft        *jsonschema.Draft
	assertFormat bool
}

// Option customises the compiler.
type Option func(*Compiler)

// WithHTTPClient sets the client used to resolve schema references over the
// network.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Compiler) {
		if client != nil {
			c.client = client
		}
	}
}

// WithDraft overrides the default draft applied to schemas without $schema.
func WithDraft(draft *jsonschema.Draft) Option {
	return func(c *Compiler) {
		if draft != nil {
			c.draft = draft
		}
	}
}

// WithFormatAssertions toggles format validation. Enabled by default so the
// registered domain formats take effect.
func WithFormatAssertions(enabled bool) Option {
	return func(c *Compiler) {
		c.assertFormat = enabled
	}
}

// NewCompiler constructs a Compiler with sensible defaults: draft-07
// semantics (the dialect whose `dependencies` keyword the inference engine
// emits) and format assertions on.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		client:       &http.Client{Timeout: 30 * time.Second},
		draft:        jsonschema.Draft7,
		assertFormat: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Compile builds a Validator for the given schema map. Failures report the
// offending schema alongside the underlying compiler diagnostic.
func (c *Compiler) Compile(schemaMap map[string]any) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(c.draft)
	compiler.UseLoader(jsonschema.SchemeURLLoader{
		"file":  jsonschema.FileLoader{},
		"http":  httpLoader{client: c.client},
		"https": httpLoader{client: c.client},
	})
	for _, name := range domainFormats {
		compiler.RegisterFormat(&jsonschema.Format{
			Name:     name,
			Validate: func(any) error { return nil },
		})
	}
	if c.assertFormat {
		compiler.AssertFormat()
	}

	doc, err := toJSONValue(schemaMap)
	if err != nil {
		return nil, &CompileError{Schema: schemaMap, err: err}
	}
	if err := compiler.AddResource(inlineSchemaURL, doc); err != nil {
		return nil, &CompileError{Schema: schemaMap, err: err}
	}
	compiled, err := compiler.Compile(inlineSchemaURL)
	if err != nil {
		return nil, &CompileError{Schema: schemaMap, err: err}
	}
	return &Validator{compiled: compiled, source: schemaMap}, nil
}

type httpLoader struct {
	client *http.Client
}

func (l httpLoader) Load(url string) (any, error) {
	resp, err := l.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("validation: fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("validation: fetch %s: unexpected status %s", url, resp.Status)
	}
	return jsonschema.UnmarshalJSON(resp.Body)
}

// toJSONValue round-trips a value through JSON so the validator sees the
// exact value shapes it expects, regardless of how the input was decoded.
func toJSONValue(value any) (any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("validation: encode value: %w", err)
	}
	return jsonschema.UnmarshalJSON(readerOf(encoded))
}

func readerOf(data []byte) io.Reader {
	return bytes.NewReader(data)
}
