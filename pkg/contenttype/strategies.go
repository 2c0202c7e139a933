package contenttype

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	goyaml "gopkg.in/yaml.v3"

	"github.com/goliatone/go-tplform/pkg/schema"
)

// Plain returns the default strategy: identity transform, fragments joined
// with a line break, no post-processing.
func Plain() Strategy {
	return Strategy{
		Name: "text/plain",
		Merge: func(fragments []string) (string, error) {
			return strings.Join(fragments, "\n"), nil
		},
	}
}

// JSON returns the application/json strategy. Array- and object-typed fields
// are serialized to JSON strings before substitution unless the property is
// flagged as already structured (produced by a nested section and therefore
// already textual JSON). Fields with format "text" are JSON-encoded so
// embedded quoting and newlines survive literal substitution. Fragments are
// parsed and deep-merged (later arrays replace earlier ones) and the final
// output is pretty-printed.
func JSON() Strategy {
	return Strategy{
		Name:           "application/json",
		TransformField: jsonTransform,
		Merge:          jsonMerge,
		PostProcess:    jsonPostProcess,
	}
}

func jsonTransform(value any, property map[string]any) (any, error) {
	if property == nil {
		return value, nil
	}
	if schema.ReadString(property, "format") == "text" {
		if str, ok := value.(string); ok {
			encoded, err := json.Marshal(str)
			if err != nil {
				return nil, fmt.Errorf("contenttype: encode text field: %w", err)
			}
			return string(encoded), nil
		}
		return value, nil
	}
	switch schema.ReadString(property, "type") {
	case "array", "object":
		if schema.ReadBool(property, "skipTransform") {
			return value, nil
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("contenttype: encode structured field: %w", err)
		}
		return string(encoded), nil
	default:
		return value, nil
	}
}

func jsonMerge(fragments []string) (string, error) {
	merged := map[string]any{}
	for _, fragment := range fragments {
		var parsed any
		if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
			return "", fmt.Errorf("contenttype: merge fragment is not valid JSON: %w", err)
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return "", fmt.Errorf("contenttype: merge fragment is not a JSON object")
		}
		merged = schema.DeepMerge(merged, obj)
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("contenttype: encode merged output: %w", err)
	}
	return string(encoded), nil
}

func jsonPostProcess(output string) (string, error) {
	if strings.TrimSpace(output) == "" {
		output = `""`
	}
	var parsed any
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return "", fmt.Errorf("contenttype: post-process output is not valid JSON: %w", err)
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(parsed); err != nil {
		return "", fmt.Errorf("contenttype: pretty-print output: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// YAML returns the application/yaml strategy: same field rules as JSON with
// YAML serialization, deep merge of parsed fragments, and a re-dump pass.
func YAML() Strategy {
	return Strategy{
		Name:           "application/yaml",
		TransformField: yamlTransform,
		Merge:          yamlMerge,
		PostProcess:    yamlPostProcess,
	}
}

func yamlTransform(value any, property map[string]any) (any, error) {
	if property == nil {
		return value, nil
	}
	switch schema.ReadString(property, "type") {
	case "array", "object":
		if schema.ReadBool(property, "skipTransform") {
			return value, nil
		}
		encoded, err := goyaml.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("contenttype: encode structured field: %w", err)
		}
		return strings.TrimRight(string(encoded), "\n"), nil
	default:
		return value, nil
	}
}

func yamlMerge(fragments []string) (string, error) {
	merged := map[string]any{}
	for _, fragment := range fragments {
		var parsed map[string]any
		if err := goyaml.Unmarshal([]byte(fragment), &parsed); err != nil {
			return "", fmt.Errorf("contenttype: merge fragment is not valid YAML: %w", err)
		}
		merged = schema.DeepMerge(merged, parsed)
	}
	encoded, err := goyaml.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("contenttype: encode merged output: %w", err)
	}
	return strings.TrimRight(string(encoded), "\n"), nil
}

func yamlPostProcess(output string) (string, error) {
	var parsed any
	if err := goyaml.Unmarshal([]byte(output), &parsed); err != nil {
		return "", fmt.Errorf("contenttype: post-process output is not valid YAML: %w", err)
	}
	encoded, err := goyaml.Marshal(parsed)
	if err != nil {
		return "", fmt.Errorf("contenttype: re-dump output: %w", err)
	}
	return strings.TrimRight(string(encoded), "\n"), nil
}

// HTML returns the text/html strategy: newline-joined merge with a UGC
// sanitization pass over the final output.
func HTML() Strategy {
	policy := bluemonday.UGCPolicy()
	return Strategy{
		Name: "text/html",
		Merge: func(fragments []string) (string, error) {
			return strings.Join(fragments, "\n"), nil
		},
		PostProcess: func(output string) (string, error) {
			return policy.Sanitize(output), nil
		},
	}
}
