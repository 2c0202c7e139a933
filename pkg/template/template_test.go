package template

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/goliatone/go-tplform/pkg/provider"
	"github.com/goliatone/go-tplform/pkg/remote"
	"github.com/goliatone/go-tplform/pkg/validation"
)

func TestFromString_HelloWorld(t *testing.T) {
	tpl, err := FromString(context.Background(), "Hello {{name}}!")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	combined := tpl.CombinedSchema()
	if combined["type"] != "object" {
		t.Fatalf("schema type: %v", combined["type"])
	}
	props, _ := combined["properties"].(map[string]any)
	if _, ok := props["name"]; !ok {
		t.Fatalf("schema missing name: %v", combined)
	}

	out, err := tpl.Render(context.Background(), map[string]any{"name": "World"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello World!" {
		t.Fatalf("unexpected output %q", out)
	}

	_, err = tpl.Render(context.Background(), map[string]any{})
	var paramErr *validation.ParameterError
	if !errors.As(err, &paramErr) {
		t.Fatalf("expected ParameterError, got %v", err)
	}
	if !strings.Contains(paramErr.Error(), "name") {
		t.Fatalf("error should name the missing property: %v", paramErr)
	}
}

func TestFromString_NoTagsYieldsStringSchema(t *testing.T) {
	tpl, err := FromString(context.Background(), "static text, nothing to fill")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tpl.Schema().Type != "string" {
		t.Fatalf("expected string schema, got %q", tpl.Schema().Type)
	}
	out, err := tpl.Render(context.Background(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "static text, nothing to fill" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromString_DefaultRenders(t *testing.T) {
	tpl, err := FromString(context.Background(), "{{size}}",
		WithDefinitions(map[string]any{
			"size": map[string]any{"type": "integer", "default": 10},
		}, []string{"size"}),
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, name := range tpl.Schema().Required {
		if name == "size" {
			t.Fatalf("defaulted property must not be required")
		}
	}
	out, err := tpl.Render(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "10" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCombinedParameters_MathExpression(t *testing.T) {
	tpl, err := FromString(context.Background(), "{{c}}",
		WithDefinitions(map[string]any{
			"c": map[string]any{"mathExpression": "a + b"},
		}, []string{"c"}),
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	combined, err := tpl.CombinedParameters(map[string]any{"a": 2, "b": 3})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if combined["c"] != "5" {
		t.Fatalf("expected computed c, got %v", combined["c"])
	}

	out, err := tpl.Render(context.Background(), map[string]any{"a": 2, "b": 3})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "5" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromString_Partials(t *testing.T) {
	tpl, err := FromString(context.Background(), "Hi {{name}}\n{{> footer}}",
		WithDefinitions(map[string]any{
			"footer": map[string]any{"template": "-- {{author}}"},
		}, []string{"footer"}),
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{"name", "author"} {
		if tpl.Schema().Properties.Get(want) == nil {
			t.Fatalf("schema missing %q", want)
		}
	}
	out, err := tpl.Render(context.Background(), map[string]any{"name": "Ada", "author": "Bob"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hi Ada\n-- Bob" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromString_SchemaProvider(t *testing.T) {
	fsys := fstest.MapFS{
		"schemas/net.json": {Data: []byte(`{"definitions":{"cidr":{"type":"string","pattern":"^[0-9./]+$"}}}`)},
	}
	tpl, err := FromString(context.Background(), "{{subnet:net:cidr}}",
		WithSchemaProvider(provider.NewFSProvider(fsys, "schemas")),
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	frag := tpl.Schema().Properties.Get("subnet")
	if frag["pattern"] != "^[0-9./]+$" {
		t.Fatalf("unexpected subnet fragment %v", frag)
	}
	if _, err := tpl.Render(context.Background(), map[string]any{"subnet": "not a cidr"}); err == nil {
		t.Fatalf("expected pattern violation")
	}
	out, err := tpl.Render(context.Background(), map[string]any{"subnet": "10.0.0.0/8"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "10.0.0.0/8" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	original, err := FromString(context.Background(), "Hello {{name}}!")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rebuilt, err := FromSerialized(original.Serialize())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if diff := cmp.Diff(original.CombinedSchema(), rebuilt.CombinedSchema()); diff != "" {
		t.Fatalf("schema drift (-original +rebuilt):\n%s", diff)
	}
	if rebuilt.SourceHash() != original.SourceHash() {
		t.Fatalf("source hash drift")
	}

	// The recompiled validator must accept exactly what the original did.
	for _, params := range []map[string]any{{}, {"name": "World"}} {
		wantErr := original.ValidateParameters(params) != nil
		gotErr := rebuilt.ValidateParameters(params) != nil
		if wantErr != gotErr {
			t.Fatalf("validator drift for %v: original=%v rebuilt=%v", params, wantErr, gotErr)
		}
	}

	out, err := rebuilt.Render(context.Background(), map[string]any{"name": "World"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello World!" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCombinedSchema_OmitsInternalFlags(t *testing.T) {
	tpl, err := FromString(context.Background(), "{{#rules}}{{port:integer}}{{/rules}}")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	props, _ := tpl.CombinedSchema()["properties"].(map[string]any)
	rules, _ := props["rules"].(map[string]any)
	if _, ok := rules["skipTransform"]; ok {
		t.Fatalf("bookkeeping flag leaked into the exported schema: %v", rules)
	}
	// the internal schema keeps the flag so the render transform still skips
	// section containers
	if tpl.Schema().Properties.Get("rules")["skipTransform"] != true {
		t.Fatalf("internal schema lost the section-container flag")
	}
}

func TestSerialize_CopiesForwardSpec(t *testing.T) {
	spec := &remote.RequestSpec{
		URL:     "http://example.test/hook",
		Headers: map[string]string{"X-Token": "abc"},
	}
	tpl, err := FromString(context.Background(), "payload {{name}}", WithHTTPForward(spec))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	s := tpl.Serialize()
	if s.HTTPForward == tpl.forward {
		t.Fatalf("serialized form must not share the forward spec")
	}
	s.HTTPForward.Headers["X-Token"] = "mutated"
	if tpl.forward.Headers["X-Token"] != "abc" {
		t.Fatalf("mutating the serialized spec leaked into the template")
	}

	rebuilt, err := FromSerialized(s)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rebuilt.forward.Headers["X-Token"] = "other"
	if s.HTTPForward.Headers["X-Token"] != "mutated" {
		t.Fatalf("rebuilt template must not share the serialized spec")
	}
}
