package tagstream

import "regexp"

// Annotated variable or block-open tags: {{name:...}}, {{#name:...}},
// {{^name:...}}, {{/name:...}}. Comments start with '!' and never match.
var annotationRe = regexp.MustCompile(`\{\{\s*([#^/]?)\s*([A-Za-z0-9_.\-]+)\s*:[^}]*\}\}`)

// Clean strips inline type annotations so the text renders with plain tag
// semantics: {{port:integer}} becomes {{port}}, {{#items:array}} becomes
// {{#items}}. Unannotated tags and literal text pass through unchanged.
func Clean(input string) string {
	return annotationRe.ReplaceAllString(input, "{{$1$2}}")
}
