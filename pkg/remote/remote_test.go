package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-tplform/pkg/schema"
)

func TestFetchProperties(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			_, _ = w.Write([]byte(`{"data":{"items":[{"name":"first"}]}}`))
		case "/raw":
			_, _ = w.Write([]byte("just text"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	props := schema.NewProperties()
	props.Set("pick", map[string]any{
		"type":      "string",
		"url":       server.URL + "/json",
		"pathQuery": "data.items.0.name",
	})
	props.Set("blob", map[string]any{
		"type": "string",
		"url":  server.URL + "/raw",
	})
	props.Set("plain", map[string]any{"type": "string"})

	values, err := FetchProperties(context.Background(), server.Client(), props)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if values["pick"] != "first" {
		t.Fatalf("expected projected value, got %v", values["pick"])
	}
	if values["blob"] != "just text" {
		t.Fatalf("expected raw fallback, got %v", values["blob"])
	}
	if _, ok := values["plain"]; ok {
		t.Fatalf("did not expect a value for url-less property")
	}
}

func TestFetchProperties_FailureNamesProperty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	props := schema.NewProperties()
	props.Set("broken", map[string]any{"url": server.URL})

	_, err := FetchProperties(context.Background(), server.Client(), props)
	if err == nil {
		t.Fatalf("expected fetch failure")
	}
	if got := err.Error(); !strings.Contains(got, "broken") {
		t.Fatalf("expected failing property name in error, got %q", got)
	}
}

func TestForward(t *testing.T) {
	var gotBody string
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	spec := &RequestSpec{URL: server.URL}
	if err := Forward(context.Background(), server.Client(), spec, `{"x":1}`, "application/json"); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if gotBody != `{"x":1}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
}

func TestForward_MissingDestination(t *testing.T) {
	if err := Forward(context.Background(), nil, nil, "out", ""); err == nil {
		t.Fatalf("expected configuration error")
	}
	if err := Forward(context.Background(), nil, &RequestSpec{}, "out", ""); err == nil {
		t.Fatalf("expected configuration error for empty url")
	}
}

func TestSpecFromValue(t *testing.T) {
	spec, err := SpecFromValue(map[string]any{
		"url":     "http://example.test",
		"method":  "PUT",
		"headers": map[string]any{"X-Token": "abc"},
	})
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if spec.Method != "PUT" || spec.Headers["X-Token"] != "abc" {
		t.Fatalf("unexpected spec %+v", spec)
	}

	if _, err := SpecFromValue(42); err == nil {
		t.Fatalf("expected error for unsupported spec type")
	}
}

func TestProject_Errors(t *testing.T) {
	if _, err := Project(map[string]any{"a": 1}, "b"); err == nil {
		t.Fatalf("expected missing segment error")
	}
	if _, err := Project([]any{"x"}, "5"); err == nil {
		t.Fatalf("expected index error")
	}
	if _, err := Project("scalar", "a"); err == nil {
		t.Fatalf("expected descend error")
	}
}

func TestRequestSpecClone(t *testing.T) {
	spec := &RequestSpec{
		URL:     "http://example.test",
		Method:  "PUT",
		Headers: map[string]string{"X-Token": "abc"},
	}
	clone := spec.Clone()
	clone.Headers["X-Token"] = "changed"
	if spec.Headers["X-Token"] != "abc" {
		t.Fatalf("clone must not share the headers map")
	}

	var absent *RequestSpec
	if absent.Clone() != nil {
		t.Fatalf("nil spec must clone to nil")
	}
}
