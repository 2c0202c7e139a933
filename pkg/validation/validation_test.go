package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestCompileAndValidate(t *testing.T) {
	validator, err := NewCompiler().Compile(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"size": map[string]any{"type": "integer"},
		},
		"required": []any{"name"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if err := validator.Validate(map[string]any{"name": "x", "size": 3}); err != nil {
		t.Fatalf("expected valid parameters, got %v", err)
	}

	err = validator.Validate(map[string]any{"size": "big"})
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	var paramErr *ParameterError
	if !errors.As(err, &paramErr) {
		t.Fatalf("expected *ParameterError, got %T", err)
	}
	if len(paramErr.Issues) == 0 {
		t.Fatalf("expected structured issues")
	}
	if !strings.Contains(paramErr.Error(), `"size":"big"`) {
		t.Fatalf("expected input embedded in message, got %s", paramErr.Error())
	}
}

func TestCompile_DomainFormatsAcceptAnything(t *testing.T) {
	validator, err := NewCompiler().Compile(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"secret": map[string]any{"type": "string", "format": "password"},
			"blob":   map[string]any{"type": "string", "format": "hidden"},
			"note":   map[string]any{"type": "string", "format": "info"},
			"body":   map[string]any{"type": "string", "format": "text"},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	params := map[string]any{
		"secret": "hunter2",
		"blob":   "\x00binary-ish\nstuff",
		"note":   "",
		"body":   "multi\nline",
	}
	if err := validator.Validate(params); err != nil {
		t.Fatalf("domain formats must accept anything, got %v", err)
	}
}

func TestCompile_Dependencies(t *testing.T) {
	validator, err := NewCompiler().Compile(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tls":  map[string]any{"type": "boolean"},
			"cert": map[string]any{"type": "string"},
		},
		"dependencies": map[string]any{
			"cert": []any{"tls"},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := validator.Validate(map[string]any{"cert": "pem"}); err == nil {
		t.Fatalf("expected dependency violation")
	}
	if err := validator.Validate(map[string]any{"tls": true, "cert": "pem"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestCompile_MalformedSchema(t *testing.T) {
	_, err := NewCompiler().Compile(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"$ref": "#/definitions/missing"},
		},
	})
	if err == nil {
		t.Fatalf("expected compile error")
	}
	var compileErr *CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected *CompileError, got %T", err)
	}
}

func TestValidateDocument(t *testing.T) {
	ok := map[string]any{
		"title":       "demo",
		"template":    "Hello {{name}}",
		"contentType": "text/plain",
		"parameters":  map[string]any{"name": "World"},
		"allOf":       []any{"other.json", map[string]any{"template": "{{x}}"}},
	}
	if err := ValidateDocument(ok); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}

	bad := map[string]any{"parameters": map[string]any{}}
	err := ValidateDocument(bad)
	if err == nil {
		t.Fatalf("expected rejection for missing template")
	}
	var docErr *DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected *DocumentError, got %T", err)
	}

	unknown := map[string]any{"template": "x", "bogus": true}
	if err := ValidateDocument(unknown); err == nil {
		t.Fatalf("expected rejection for unknown key")
	}
}
