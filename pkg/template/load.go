package template

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-tplform/pkg/provider"
	"github.com/goliatone/go-tplform/pkg/remote"
	"github.com/goliatone/go-tplform/pkg/schema"
	"github.com/goliatone/go-tplform/pkg/validation"
)

// ErrPathTraversal marks a cross-file reference resolving outside the
// template-set root directory.
var ErrPathTraversal = errors.New("template: reference escapes the template-set root")

// Load reads a structured template document (JSON or YAML) from disk. The
// document's directory becomes the template-set root: every cross-file
// reference must resolve inside it.
func Load(ctx context.Context, path string, opts ...Option) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template: read %s: %w", path, err)
	}
	return LoadBytes(ctx, raw, filepath.Dir(path), opts...)
}

// LoadBytes compiles a structured document against an explicit root
// directory.
func LoadBytes(ctx context.Context, raw []byte, rootDir string, opts ...Option) (*Template, error) {
	cfg := newConfig(opts)
	if err := cfg.gather(ctx); err != nil {
		return nil, err
	}
	if cfg.templates == nil {
		cfg.templates = provider.NewFSTemplateProvider(os.DirFS(rootDir))
	}
	loader := &docLoader{cfg: cfg, rootDir: rootDir}
	return loader.load(ctx, raw)
}

type docLoader struct {
	cfg     *config
	rootDir string
}

// load validates the document against the meta-schema, then compiles it.
// Composition entries may be inline documents or string references into the
// template set; references are checked against the root before any read.
func (l *docLoader) load(ctx context.Context, raw []byte) (*Template, error) {
	payload, node, err := schema.DecodeDocument(raw)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateDocument(payload); err != nil {
		return nil, err
	}
	return l.compile(ctx, payload, node, string(raw))
}

func (l *docLoader) compile(ctx context.Context, payload map[string]any, node *yaml.Node, sourceText string) (*Template, error) {
	cfg := &config{
		title:       schema.ReadString(payload, "title"),
		contentType: schema.ReadString(payload, "contentType"),
		defaults:    schema.ReadMap(payload, "parameters"),
		definitions: schema.ReadMap(payload, "definitions"),
		defOrder:    schema.MappingKeys(node, "definitions"),
		typeSchemas: l.cfg.typeSchemas,
		dataFiles:   l.cfg.dataFiles,
		client:      l.cfg.client,
		strategies:  l.cfg.strategies,
	}
	if cfg.contentType == "" {
		cfg.contentType = l.cfg.contentType
	}

	if forward, ok := payload["httpForward"]; ok {
		spec, err := remote.SpecFromValue(forward)
		if err != nil {
			return nil, fmt.Errorf("template: httpForward: %w", err)
		}
		cfg.forward = spec
	}

	for _, key := range []string{"oneOf", "allOf", "anyOf"} {
		branches, err := l.compileBranches(ctx, payload, node, key)
		if err != nil {
			return nil, err
		}
		switch key {
		case "oneOf":
			cfg.oneOf = branches
		case "allOf":
			cfg.allOf = branches
		case "anyOf":
			cfg.anyOf = branches
		}
	}

	tpl, err := buildFrom(cfg, SourceDocument, schema.ReadString(payload, "template"), sourceText)
	if err != nil {
		return nil, err
	}
	if desc := schema.ReadString(payload, "description"); desc != "" {
		tpl.description = desc
		tpl.schemaTree.Description = desc
	}
	return tpl, nil
}

func (l *docLoader) compileBranches(ctx context.Context, payload map[string]any, node *yaml.Node, key string) ([]*Template, error) {
	entries, ok := payload[key].([]any)
	if !ok || len(entries) == 0 {
		return nil, nil
	}
	itemNodes := schema.SequenceItems(schema.ChildNode(node, key))

	out := make([]*Template, 0, len(entries))
	for i, entry := range entries {
		switch v := entry.(type) {
		case string:
			branch, err := l.loadReference(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("template: %s[%d]: %w", key, i, err)
			}
			out = append(out, branch)
		case map[string]any:
			var itemNode *yaml.Node
			if i < len(itemNodes) {
				itemNode = itemNodes[i]
			}
			branch, err := l.compile(ctx, v, itemNode, "")
			if err != nil {
				return nil, fmt.Errorf("template: %s[%d]: %w", key, i, err)
			}
			out = append(out, branch)
		default:
			return nil, fmt.Errorf("template: %s[%d]: unsupported entry type %T", key, i, entry)
		}
	}
	return out, nil
}

// loadReference resolves a cross-file reference. The traversal check runs,
// and must pass, before anything is read.
func (l *docLoader) loadReference(ctx context.Context, ref string) (*Template, error) {
	rel, err := containedPath(l.rootDir, ref)
	if err != nil {
		return nil, err
	}
	text, err := l.cfg.templates.Fetch(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return l.load(ctx, []byte(text))
}

// containedPath resolves ref against root and verifies it stays inside,
// returning the root-relative slash path.
func containedPath(root, ref string) (string, error) {
	resolved := filepath.Clean(filepath.Join(root, ref))
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, ref)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, ref)
	}
	return filepath.ToSlash(rel), nil
}
