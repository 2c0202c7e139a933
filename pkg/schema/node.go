package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeDocument parses a JSON or YAML document into a value tree while
// preserving mapping key order wherever callers ask for it. JSON is a YAML
// subset, so a single decode path serves both.
func DecodeDocument(raw []byte) (map[string]any, *yaml.Node, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, nil, fmt.Errorf("schema: decode document: %w", err)
	}
	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	value, err := nodeValue(root)
	if err != nil {
		return nil, nil, err
	}
	payload, ok := value.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("schema: document root must be an object")
	}
	return payload, root, nil
}

// MappingKeys returns the keys of a nested mapping in declaration order.
// path walks from the root mapping; a missing segment yields nil.
func MappingKeys(root *yaml.Node, path ...string) []string {
	node := root
	if node != nil && node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	for _, segment := range path {
		node = mappingChild(node, segment)
		if node == nil {
			return nil
		}
	}
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	return keys
}

// ChildNode resolves a nested mapping value node, or nil when the path does
// not exist.
func ChildNode(root *yaml.Node, path ...string) *yaml.Node {
	node := root
	if node != nil && node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	for _, segment := range path {
		node = mappingChild(node, segment)
		if node == nil {
			return nil
		}
	}
	return node
}

// SequenceItems returns the item nodes of a sequence, or nil for anything
// else.
func SequenceItems(node *yaml.Node) []*yaml.Node {
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}
	return node.Content
}

func mappingChild(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func nodeValue(node *yaml.Node) (any, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			value, err := nodeValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[node.Content[i].Value] = value
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := nodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case yaml.ScalarNode, yaml.AliasNode:
		var out any
		if err := node.Decode(&out); err != nil {
			return nil, fmt.Errorf("schema: decode scalar: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("schema: unsupported node kind %d", node.Kind)
	}
}
