package tplform

import (
	"context"

	"github.com/goliatone/go-tplform/pkg/provider"
	"github.com/goliatone/go-tplform/pkg/remote"
	"github.com/goliatone/go-tplform/pkg/template"
)

// Template is the compiled form of one annotated template; alias exported via
// the root package for convenience.
type Template = template.Template

// Option customises template construction.
type Option = template.Option

// RenderOptions tune a single render call.
type RenderOptions = template.RenderOptions

// Serialized is the plain representation of a compiled Template.
type Serialized = template.Serialized

// RequestSpec describes an outbound HTTP request attached to a property or
// to the httpForward setting.
type RequestSpec = remote.RequestSpec

// Filesystem-backed collaborators re-exported from pkg/provider.
var (
	NewFSProvider         = provider.NewFSProvider
	NewFSTemplateProvider = provider.NewFSTemplateProvider
)

// Construction options re-exported from pkg/template.
var (
	WithTitle            = template.WithTitle
	WithContentType      = template.WithContentType
	WithDefaults         = template.WithDefaults
	WithDefinitions      = template.WithDefinitions
	WithTypeSchemas      = template.WithTypeSchemas
	WithDataFiles        = template.WithDataFiles
	WithSchemaProvider   = template.WithSchemaProvider
	WithDataProvider     = template.WithDataProvider
	WithTemplateProvider = template.WithTemplateProvider
	WithHTTPForward      = template.WithHTTPForward
	WithHTTPClient       = template.WithHTTPClient
	WithStrategies       = template.WithStrategies
)

// FromString compiles annotated tag-based text into a Template.
func FromString(ctx context.Context, text string, options ...Option) (*Template, error) {
	return template.FromString(ctx, text, options...)
}

// Load reads a structured template document from disk. The document's
// directory becomes the template-set root for cross-file references.
func Load(ctx context.Context, path string, options ...Option) (*Template, error) {
	return template.Load(ctx, path, options...)
}

// LoadBytes compiles a structured document against an explicit root
// directory.
func LoadBytes(ctx context.Context, raw []byte, rootDir string, options ...Option) (*Template, error) {
	return template.LoadBytes(ctx, raw, rootDir, options...)
}

// FromSerialized reconstructs a Template from its serialized form,
// recompiling the validator without re-running schema inference.
func FromSerialized(s *Serialized, options ...Option) (*Template, error) {
	return template.FromSerialized(s, options...)
}

// Render compiles and renders tag-based text in one call. It is the simplest
// entry point for callers that just want output text.
func Render(ctx context.Context, text string, params map[string]any, options ...Option) (string, error) {
	tpl, err := template.FromString(ctx, text, options...)
	if err != nil {
		return "", err
	}
	return tpl.Render(ctx, params)
}
