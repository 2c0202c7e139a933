package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbroglie/mustache"
	"github.com/goliatone/go-tplform/pkg/contenttype"
	"github.com/goliatone/go-tplform/pkg/remote"
	"github.com/goliatone/go-tplform/pkg/validation"
)

// RenderOptions tune a single render call.
type RenderOptions struct {
	// SkipValidation bypasses the parameter validator.
	SkipValidation bool
}

// Render validates the parameters, folds defaults and expressions, applies
// the content-type transforms, renders the root text and every composed
// branch, merges the fragments and post-processes the result.
func (t *Template) Render(ctx context.Context, params map[string]any) (string, error) {
	return t.RenderWithOptions(ctx, params, RenderOptions{})
}

// RenderWithOptions is Render with knobs.
func (t *Template) RenderWithOptions(ctx context.Context, params map[string]any, opts RenderOptions) (string, error) {
	fetched, err := remote.FetchProperties(ctx, t.client, t.schemaTree.Properties)
	if err != nil {
		return "", err
	}
	if len(fetched) > 0 {
		// Caller-supplied values win over fetched ones.
		params = foldParams(fetched, params)
	}

	if !opts.SkipValidation {
		if err := t.ValidateParameters(params); err != nil {
			return "", err
		}
	}

	combined, err := t.CombinedParameters(params)
	if err != nil {
		return "", err
	}

	strategy := t.strategies.Resolve(t.contentType)
	transformed, err := t.transformParameters(combined, strategy)
	if err != nil {
		return "", err
	}

	fragments := make([]string, 0, len(t.allOf)+len(t.oneOf)+len(t.anyOf)+1)
	for _, branch := range t.allOf {
		// Composition already implies branch validity.
		out, err := branch.RenderWithOptions(ctx, combined, RenderOptions{SkipValidation: true})
		if err != nil {
			return "", err
		}
		fragments = append(fragments, out)
	}
	for _, branch := range append(append([]*Template(nil), t.oneOf...), t.anyOf...) {
		out, err := branch.RenderWithOptions(ctx, combined, RenderOptions{})
		if err != nil {
			var paramErr *validation.ParameterError
			if errors.As(err, &paramErr) {
				// The branch does not apply to this parameter set.
				continue
			}
			return "", err
		}
		fragments = append(fragments, out)
	}

	rendered, err := t.renderBody(transformed)
	if err != nil {
		return "", err
	}
	fragments = append(fragments, rendered)

	merged, err := strategy.MergeFragments(fragments)
	if err != nil {
		return "", fmt.Errorf("template: merge output: %w", err)
	}
	final, err := strategy.Finalize(merged)
	if err != nil {
		return "", fmt.Errorf("template: post-process output: %w", err)
	}
	return final, nil
}

// transformParameters applies the content-type transform to every combined
// parameter that has a known property schema.
func (t *Template) transformParameters(combined map[string]any, strategy contenttype.Strategy) (map[string]any, error) {
	out := make(map[string]any, len(combined))
	var transformErr error
	for name, value := range combined {
		frag := t.schemaTree.Properties.Get(name)
		if frag == nil {
			out[name] = value
			continue
		}
		transformed, err := strategy.Transform(value, frag)
		if err != nil {
			transformErr = fmt.Errorf("template: transform %q: %w", name, err)
			break
		}
		out[name] = transformed
	}
	if transformErr != nil {
		return nil, transformErr
	}
	return out, nil
}

// renderBody substitutes the transformed parameters into the cleaned text,
// with the compiled partial bodies available for reference. Raw rendering:
// content shaping belongs to the strategy, not HTML escaping.
func (t *Template) renderBody(params map[string]any) (string, error) {
	tmpl, err := mustache.ParseStringPartialsRaw(t.cleanText, &mustache.StaticProvider{Partials: t.partials}, true)
	if err != nil {
		return "", fmt.Errorf("template: parse body: %w", err)
	}
	out, err := tmpl.Render(params)
	if err != nil {
		return "", fmt.Errorf("template: render body: %w", err)
	}
	return out, nil
}

// ValidateParameters recomputes combined parameters and runs the compiled
// validator against them. A template with no structured parameters accepts
// anything.
func (t *Template) ValidateParameters(params map[string]any) error {
	if !t.hasParameters() {
		return nil
	}
	combined, err := t.CombinedParameters(params)
	if err != nil {
		return err
	}
	return t.validator.Validate(combined)
}

// hasParameters reports whether the template, or any composed branch,
// declares structured parameters.
func (t *Template) hasParameters() bool {
	if t.schemaTree.Type == "object" {
		return true
	}
	for _, branch := range t.branches() {
		if branch.hasParameters() {
			return true
		}
	}
	return false
}

// Forward posts rendered output to the configured endpoint using the
// template's content type.
func (t *Template) Forward(ctx context.Context, rendered string) error {
	return t.forwardTo(ctx, t.forward, rendered)
}

func (t *Template) forwardTo(ctx context.Context, spec *remote.RequestSpec, rendered string) error {
	contentType := t.contentType
	if contentType == "" {
		contentType = "text/plain"
	}
	return remote.Forward(ctx, t.client, spec, rendered, contentType)
}
