package infer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/tagstream"
)

func mustTokenize(t *testing.T, input string) []tagstream.Token {
	t.Helper()
	tokens, err := tagstream.Tokenize(input)
	if err != nil {
		t.Fatalf("tokenize %q: %v", input, err)
	}
	return tokens
}

func TestInfer_NoParameters(t *testing.T) {
	got, err := Infer(mustTokenize(t, "plain text only"), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if got.Type != "string" {
		t.Fatalf("expected string schema for parameterless template, got %q", got.Type)
	}
}

func TestInfer_BareVariable(t *testing.T) {
	got, err := Infer(mustTokenize(t, "Hello {{name}}!"), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	frag := got.Properties.Get("name")
	if frag == nil || frag["type"] != "string" {
		t.Fatalf("expected string property, got %v", frag)
	}
	if diff := cmp.Diff([]string{"name"}, got.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_TypedVariables(t *testing.T) {
	got, err := Infer(mustTokenize(t, "{{count:integer}} {{note:text}} {{token:hidden}}"), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("count"); frag["type"] != "integer" {
		t.Fatalf("count: %v", frag)
	}
	if frag := got.Properties.Get("note"); frag["type"] != "string" || frag["format"] != "text" {
		t.Fatalf("note: %v", frag)
	}
	if frag := got.Properties.Get("token"); frag["format"] != "hidden" {
		t.Fatalf("token: %v", frag)
	}
	// hidden never joins required
	if diff := cmp.Diff([]string{"count", "note"}, got.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_SchemaSourceLookup(t *testing.T) {
	opts := Options{
		TypeSchemas: map[string]map[string]any{
			"net": {
				"definitions": map[string]any{
					"cidr": map[string]any{"type": "string", "pattern": "^[0-9./]+$"},
				},
			},
		},
	}
	got, err := Infer(mustTokenize(t, "{{subnet:net:cidr}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("subnet"); frag["pattern"] != "^[0-9./]+$" {
		t.Fatalf("expected resolved cidr fragment, got %v", frag)
	}

	if _, err := Infer(mustTokenize(t, "{{x:nope:cidr}}"), opts); !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}
	if _, err := Infer(mustTokenize(t, "{{x:net:nope}}"), opts); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestInfer_AuthorDefinitionWinsAndDefaultDropsRequired(t *testing.T) {
	opts := Options{
		Definitions: map[string]map[string]any{
			"size": {"type": "string", "default": "10", "title": "Size"},
		},
		DefinitionOrder: []string{"size"},
	}
	got, err := Infer(mustTokenize(t, "{{size}} and {{name}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("size"); frag["default"] != "10" || frag["title"] != "Size" {
		t.Fatalf("size fragment: %v", frag)
	}
	if diff := cmp.Diff([]string{"name"}, got.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
	// declared definitions order ahead of the default rank
	if diff := cmp.Diff([]string{"size", "name"}, got.Properties.Names()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_MathExpressionPullsOperands(t *testing.T) {
	opts := Options{
		Definitions: map[string]map[string]any{
			"c": {"mathExpression": "a + b"},
		},
	}
	got, err := Infer(mustTokenize(t, "{{c}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("c"); frag["format"] != "hidden" {
		t.Fatalf("computed property should hide, got %v", frag)
	}
	for _, operand := range []string{"a", "b"} {
		if frag := got.Properties.Get(operand); frag == nil || frag["type"] != "number" {
			t.Fatalf("operand %q: %v", operand, frag)
		}
	}
	if diff := cmp.Diff([]string{"a", "b"}, got.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_DataFile(t *testing.T) {
	opts := Options{
		Definitions: map[string]map[string]any{
			"script":  {"type": "string", "dataFile": "setup.sh"},
			"payload": {"type": "string", "dataFile": "setup.sh", "base64encode": true},
		},
		DataFiles: map[string]string{"setup.sh": "#!/bin/sh\n"},
	}
	got, err := Infer(mustTokenize(t, "{{script}}{{payload}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	script := got.Properties.Get("script")
	if script["default"] != "#!/bin/sh\n" || script["format"] != "hidden" {
		t.Fatalf("script fragment: %v", script)
	}
	if _, ok := script["dataFile"]; ok {
		t.Fatalf("dataFile key should be stripped")
	}
	if got.Properties.Get("payload")["default"] != "IyEvYmluL3NoCg==" {
		t.Fatalf("payload fragment: %v", got.Properties.Get("payload"))
	}
	if len(got.Required) != 0 {
		t.Fatalf("data-backed properties are never required, got %v", got.Required)
	}

	opts.DataFiles = nil
	if _, err := Infer(mustTokenize(t, "{{script}}"), opts); !errors.Is(err, ErrUnknownDataFile) {
		t.Fatalf("expected ErrUnknownDataFile, got %v", err)
	}
}

func TestInfer_ArraySection(t *testing.T) {
	got, err := Infer(mustTokenize(t, "{{#rules}}{{port:integer}} {{proto}}{{/rules}}"), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	rules := got.Properties.Get("rules")
	if rules["type"] != "array" {
		t.Fatalf("rules: %v", rules)
	}
	if rules["skipTransform"] != true {
		t.Fatalf("section container must skip content-type transform: %v", rules)
	}
	items, _ := rules["items"].(map[string]any)
	props, _ := items["properties"].(map[string]any)
	if _, ok := props["port"]; !ok {
		t.Fatalf("item properties missing port: %v", items)
	}
	if diff := cmp.Diff([]any{"port", "proto"}, items["required"]); diff != "" {
		t.Fatalf("item required mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_ObjectSection(t *testing.T) {
	opts := Options{
		Definitions: map[string]map[string]any{
			"server": {"type": "object"},
		},
	}
	got, err := Infer(mustTokenize(t, "{{#server}}{{host}}{{/server}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	server := got.Properties.Get("server")
	if server["type"] != "object" {
		t.Fatalf("server: %v", server)
	}
	props, _ := server["properties"].(map[string]any)
	if _, ok := props["host"]; !ok {
		t.Fatalf("nested host missing: %v", server)
	}
}

func TestInfer_BooleanSectionHoistsChildren(t *testing.T) {
	got, err := Infer(mustTokenize(t, "{{#tls:boolean}}{{cert}}{{/tls}}"), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("tls"); frag["type"] != "boolean" {
		t.Fatalf("tls: %v", frag)
	}
	if frag := got.Properties.Get("cert"); frag == nil {
		t.Fatalf("cert should hoist to the top level")
	}
	if diff := cmp.Diff([]string{"tls"}, got.Dependencies["cert"]); diff != "" {
		t.Fatalf("dependency mismatch (-want +got):\n%s", diff)
	}
}

func TestInfer_SectionTypeConflict(t *testing.T) {
	_, err := Infer(mustTokenize(t, "{{flag:boolean}} {{#flag:array}}{{x}}{{/flag}}"), Options{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Name != "flag" || conflict.Existing != "boolean" || conflict.Declared != "array" {
		t.Fatalf("unexpected conflict %+v", conflict)
	}

	// same declared type is fine
	if _, err := Infer(mustTokenize(t, "{{#rules:array}}{{x}}{{/rules}} {{#rules:array}}{{y}}{{/rules}}"), Options{}); err != nil {
		t.Fatalf("same-type redeclaration should pass: %v", err)
	}
}

func TestInfer_InvertedSection(t *testing.T) {
	got, err := Infer(mustTokenize(t, "{{^custom}}{{preset}}{{/custom}}"), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("custom"); frag["type"] != "boolean" {
		t.Fatalf("custom: %v", frag)
	}
	preset := got.Properties.Get("preset")
	if diff := cmp.Diff([]any{"custom"}, preset["invertDependency"]); diff != "" {
		t.Fatalf("invertDependency mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"custom"}, got.Dependencies["preset"]); diff != "" {
		t.Fatalf("dependency mismatch (-want +got):\n%s", diff)
	}
	for _, name := range got.Required {
		if name == "custom" {
			t.Fatalf("inverted toggle must never be required")
		}
	}
}

func TestInfer_PartialMergeKeepsWiderType(t *testing.T) {
	wide := &schema.ParameterSchema{Type: "object", Properties: schema.NewProperties()}
	wide.Properties.Set("mode", map[string]any{"type": "boolean"})

	opts := Options{Partials: map[string]*schema.ParameterSchema{"footer": wide}}
	got, err := Infer(mustTokenize(t, "{{#mode:array}}{{x}}{{/mode}} {{> footer}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if frag := got.Properties.Get("mode"); frag["type"] != "array" {
		t.Fatalf("boolean from partial must not narrow the array, got %v", frag)
	}

	if _, err := Infer(mustTokenize(t, "{{> missing}}"), Options{}); !errors.Is(err, ErrUnknownPartial) {
		t.Fatalf("expected ErrUnknownPartial, got %v", err)
	}
}

func TestInfer_ExplicitDependenciesSuppressImplicit(t *testing.T) {
	opts := Options{
		ExplicitDependencies: map[string][]string{"cert": {"other"}},
	}
	got, err := Infer(mustTokenize(t, "{{#tls:boolean}}{{cert}}{{/tls}} {{other}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if diff := cmp.Diff([]string{"other"}, got.Dependencies["cert"]); diff != "" {
		t.Fatalf("explicit dependencies must win (-want +got):\n%s", diff)
	}
}

func TestInfer_PropertyOrderRanking(t *testing.T) {
	opts := Options{
		Definitions: map[string]map[string]any{
			"last":  {"type": "string", "propertyOrder": 2000},
			"first": {"type": "string", "propertyOrder": 1},
		},
	}
	got, err := Infer(mustTokenize(t, "{{last}}{{middle}}{{first}}"), opts)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if diff := cmp.Diff([]string{"first", "middle", "last"}, got.Properties.Names()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.Properties.Get("first")["propertyOrder"]; ok {
		t.Fatalf("propertyOrder must not leak into the final schema")
	}
}

func TestInfer_Deterministic(t *testing.T) {
	input := "{{b}}{{a}}{{#list}}{{x}}{{/list}}"
	first, err := Infer(mustTokenize(t, input), Options{})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Infer(mustTokenize(t, input), Options{})
		if err != nil {
			t.Fatalf("infer: %v", err)
		}
		if diff := cmp.Diff(first.ToMap(), again.ToMap()); diff != "" {
			t.Fatalf("inference not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestInfer_ItemTypeConflict(t *testing.T) {
	opts := Options{
		Definitions: map[string]map[string]any{
			"rules": {"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
	_, err := Infer(mustTokenize(t, "{{#rules}}{{port}}{{/rules}}"), opts)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !conflict.Items || conflict.Existing != "string" || conflict.Declared != "object" {
		t.Fatalf("unexpected conflict %+v", conflict)
	}

	// same declared item type merges instead of failing
	opts.Definitions["rules"] = map[string]any{
		"type": "array", "items": map[string]any{"type": "object"},
	}
	got, err := Infer(mustTokenize(t, "{{#rules}}{{port}}{{/rules}}"), opts)
	if err != nil {
		t.Fatalf("same-item-type redeclaration should pass: %v", err)
	}
	items, _ := got.Properties.Get("rules")["items"].(map[string]any)
	props, _ := items["properties"].(map[string]any)
	if _, ok := props["port"]; !ok {
		t.Fatalf("item properties missing port: %v", items)
	}
}
