// Package remote covers the two HTTP touch points of the pipeline: pulling
// property values from URLs before rendering, and forwarding rendered output
// to a configured endpoint.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-tplform/pkg/schema"
)

// RequestSpec describes one outbound request. Property schemas may declare
// it as a bare URL string or as an object with url/method/headers/body.
type RequestSpec struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Clone deep-copies the spec, headers included.
func (s *RequestSpec) Clone() *RequestSpec {
	if s == nil {
		return nil
	}
	out := &RequestSpec{URL: s.URL, Method: s.Method, Body: s.Body}
	if len(s.Headers) > 0 {
		out.Headers = make(map[string]string, len(s.Headers))
		for key, value := range s.Headers {
			out.Headers[key] = value
		}
	}
	return out
}

// SpecFromValue builds a RequestSpec from either form.
func SpecFromValue(value any) (*RequestSpec, error) {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("remote: url is empty")
		}
		return &RequestSpec{URL: v}, nil
	case map[string]any:
		url := schema.ReadString(v, "url")
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("remote: request spec has no url")
		}
		spec := &RequestSpec{
			URL:    url,
			Method: schema.ReadString(v, "method"),
			Body:   schema.ReadString(v, "body"),
		}
		if headers := schema.ReadMap(v, "headers"); len(headers) > 0 {
			spec.Headers = make(map[string]string, len(headers))
			for key := range headers {
				spec.Headers[key] = schema.ReadString(headers, key)
			}
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("remote: unsupported request spec type %T", value)
	}
}

// DefaultClient is used when callers do not inject their own.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// FetchProperties issues one request per url-carrying property, concurrently,
// and returns the fetched values keyed by property name. Bodies parse as
// JSON with a raw-text fallback; a pathQuery on the property projects into
// the parsed value. Any failure aborts the whole fetch, naming the property.
func FetchProperties(ctx context.Context, client *http.Client, props *schema.Properties) (map[string]any, error) {
	if client == nil {
		client = DefaultClient
	}

	type target struct {
		name      string
		spec      *RequestSpec
		pathQuery string
	}
	var targets []target
	var specErr error
	props.Range(func(name string, fragment map[string]any) bool {
		raw, ok := fragment["url"]
		if !ok {
			return true
		}
		spec, err := SpecFromValue(raw)
		if err != nil {
			specErr = fmt.Errorf("remote: property %q: %w", name, err)
			return false
		}
		targets = append(targets, target{
			name:      name,
			spec:      spec,
			pathQuery: schema.ReadString(fragment, "pathQuery"),
		})
		return true
	})
	if specErr != nil {
		return nil, specErr
	}
	if len(targets) == 0 {
		return map[string]any{}, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	out := make(map[string]any, len(targets))
	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			value, err := fetchValue(ctx, client, tgt.spec, tgt.pathQuery)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("remote: fetch property %q: %w", tgt.name, err)
				}
				return
			}
			out[tgt.name] = value
		}(tgt)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func fetchValue(ctx context.Context, client *http.Client, spec *RequestSpec, pathQuery string) (any, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return nil, err
	}
	for key, value := range spec.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		parsed = string(data)
	}
	if pathQuery == "" {
		return parsed, nil
	}
	return Project(parsed, pathQuery)
}

// Project walks a dotted path through maps and slices: "data.items.0.name".
func Project(value any, path string) (any, error) {
	current := value
	for _, segment := range strings.Split(path, ".") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[segment]
			if !ok {
				return nil, fmt.Errorf("remote: path segment %q not found", segment)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("remote: path segment %q is not a valid index", segment)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("remote: cannot descend into %T with %q", current, segment)
		}
	}
	return current, nil
}

// Forward POSTs rendered output to the configured endpoint, using the
// template's content type. Forwarding without a destination is a usage
// error, not a silent no-op.
func Forward(ctx context.Context, client *http.Client, spec *RequestSpec, rendered, contentType string) error {
	if spec == nil || strings.TrimSpace(spec.URL) == "" {
		return fmt.Errorf("remote: forwarding requested without a destination")
	}
	if client == nil {
		client = DefaultClient
	}
	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, spec.URL, strings.NewReader(rendered))
	if err != nil {
		return fmt.Errorf("remote: forward to %s: %w", spec.URL, err)
	}
	if contentType == "" {
		contentType = "text/plain"
	}
	req.Header.Set("Content-Type", contentType)
	for key, value := range spec.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: forward to %s: %w", spec.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote: forward to %s: unexpected status %s", spec.URL, resp.Status)
	}
	return nil
}
