package validation

import (
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Meta-schema for structured template documents. Compiled once, read-only
// afterwards.
const metaSchemaURL = "tplform:///template-document.json"

const metaSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["template"],
  "additionalProperties": false,
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"},
    "template": {"type": "string"},
    "contentType": {"type": "string"},
    "parameters": {"type": "object"},
    "definitions": {
      "type": "object",
      "additionalProperties": {"type": "object"}
    },
    "httpForward": {
      "type": "object",
      "required": ["url"],
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string"},
        "method": {"type": "string"},
        "headers": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        }
      }
    },
    "oneOf": {"$ref": "#/definitions/templateList"},
    "allOf": {"$ref": "#/definitions/templateList"},
    "anyOf": {"$ref": "#/definitions/templateList"}
  },
  "definitions": {
    "templateList": {
      "type": "array",
      "items": {
        "anyOf": [
          {"type": "string"},
          {"$ref": "#"}
        ]
      }
    }
  }
}`

var (
	metaOnce     sync.Once
	metaSchema   *jsonschema.Schema
	metaCompiled error
)

func metaValidator() (*jsonschema.Schema, error) {
	metaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metaSchemaJSON))
		if err != nil {
			metaCompiled = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(metaSchemaURL, doc); err != nil {
			metaCompiled = err
			return
		}
		metaSchema, metaCompiled = compiler.Compile(metaSchemaURL)
	})
	return metaSchema, metaCompiled
}

// ValidateDocument checks a structured template document against the
// meta-schema before any further processing.
func ValidateDocument(doc map[string]any) error {
	compiled, err := metaValidator()
	if err != nil {
		return &CompileError{err: err}
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return &DocumentError{Issues: []Issue{{Message: err.Error()}}, err: err}
	}
	if err := compiled.Validate(value); err != nil {
		return &DocumentError{Issues: issuesFromError(err), err: err}
	}
	return nil
}
