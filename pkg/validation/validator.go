package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Issue is one validation failure with its instance location.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Validator wraps a compiled schema.
type Validator struct {
	compiled *jsonschema.Schema
	source   map[string]any
}

// Schema returns the schema map the validator was compiled from.
func (v *Validator) Schema() map[string]any { return v.source }

// Validate checks parameters against the compiled schema. Failures come back
// as a *ParameterError carrying the input and the structured issue list.
func (v *Validator) Validate(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	doc, err := toJSONValue(params)
	if err != nil {
		return &ParameterError{Parameters: params, Issues: []Issue{{Message: err.Error()}}, err: err}
	}
	if err := v.compiled.Validate(doc); err != nil {
		return &ParameterError{Parameters: params, Issues: issuesFromError(err), err: err}
	}
	return nil
}

// ParameterError reports parameters that failed validation, embedding both
// the original input and the validator's structured error list.
type ParameterError struct {
	Parameters map[string]any
	Issues     []Issue
	err        error
}

func (e *ParameterError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation: parameters rejected")
	if encoded, err := json.Marshal(e.Parameters); err == nil {
		sb.WriteString(" (input ")
		sb.Write(encoded)
		sb.WriteString(")")
	}
	for _, issue := range e.Issues {
		sb.WriteString("\n  - ")
		if issue.Path != "" {
			sb.WriteString(issue.Path)
			sb.WriteString(": ")
		}
		sb.WriteString(issue.Message)
	}
	return sb.String()
}

func (e *ParameterError) Unwrap() error { return e.err }

// CompileError reports a schema that could not be compiled.
type CompileError struct {
	Schema map[string]any
	err    error
}

func (e *CompileError) Error() string {
	schemaJSON, _ := json.Marshal(e.Schema)
	return fmt.Sprintf("validation: compile schema %s: %v", schemaJSON, e.err)
}

func (e *CompileError) Unwrap() error { return e.err }

// DocumentError reports a structured template document that failed the
// meta-schema check.
type DocumentError struct {
	Issues []Issue
	err    error
}

func (e *DocumentError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation: template document rejected")
	for _, issue := range e.Issues {
		sb.WriteString("\n  - ")
		if issue.Path != "" {
			sb.WriteString(issue.Path)
			sb.WriteString(": ")
		}
		sb.WriteString(issue.Message)
	}
	return sb.String()
}

func (e *DocumentError) Unwrap() error { return e.err }

var issuePrinter = message.NewPrinter(language.English)

func issuesFromError(err error) []Issue {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Message: err.Error()}}
	}
	var issues []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, Issue{
				Path:    "/" + strings.Join(e.InstanceLocation, "/"),
				Message: e.ErrorKind.LocalizedString(issuePrinter),
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return issues
}
