package tagstream

import (
	"fmt"
	"strings"
)

// Kind discriminates the token variants produced by the tokenizer.
type Kind int

const (
	// KindText is a literal run of template text.
	KindText Kind = iota
	// KindVariable is a substitution point, optionally annotated with a
	// schema source and type name.
	KindVariable
	// KindSection opens a repeated, grouped, or toggled block.
	KindSection
	// KindInverted opens a block gated on the absence of a toggle.
	KindInverted
	// KindPartial references a named sub-template.
	KindPartial
	// KindComment is ignored by rendering; the first comment doubles as the
	// template description.
	KindComment
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindVariable:
		return "variable"
	case KindSection:
		return "section"
	case KindInverted:
		return "inverted"
	case KindPartial:
		return "partial"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Token is one node of the parsed tag stream. Section and inverted-section
// tokens carry their nested tokens in Children.
type Token struct {
	Kind         Kind
	Name         string
	SchemaSource string
	TypeName     string
	Text         string
	Children     []Token
}

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Tokenize parses tag-based template text into a token tree. Tag syntax is
// the usual double-brace dialect: {{name}}, {{#section}}...{{/section}},
// {{^toggle}}...{{/toggle}}, {{>partial}}, {{!comment}}. Variable tags accept
// a `name:type` or `name:schemaSource:type` annotation; section tags accept
// `name:type`.
func Tokenize(input string) ([]Token, error) {
	var (
		root  []Token
		stack []*Token
	)

	appendToken := func(tok Token) {
		if len(stack) == 0 {
			root = append(root, tok)
			return
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, tok)
	}

	rest := input
	for len(rest) > 0 {
		open := strings.Index(rest, openDelim)
		if open < 0 {
			appendToken(Token{Kind: KindText, Text: rest})
			break
		}
		if open > 0 {
			appendToken(Token{Kind: KindText, Text: rest[:open]})
		}
		rest = rest[open+len(openDelim):]

		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return nil, fmt.Errorf("tagstream: unclosed tag near %q", truncate(rest, 24))
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(closeDelim):]

		if body == "" {
			return nil, fmt.Errorf("tagstream: empty tag")
		}

		switch body[0] {
		case '!':
			appendToken(Token{Kind: KindComment, Text: strings.TrimSpace(body[1:])})
		case '>':
			name := strings.TrimSpace(body[1:])
			if name == "" {
				return nil, fmt.Errorf("tagstream: partial tag without a name")
			}
			appendToken(Token{Kind: KindPartial, Name: name})
		case '#', '^':
			kind := KindSection
			if body[0] == '^' {
				kind = KindInverted
			}
			tok := Token{Kind: kind}
			if err := annotate(&tok, strings.TrimSpace(body[1:])); err != nil {
				return nil, err
			}
			// While a block is open, neither the root slice nor the parent's
			// Children grow, so the tracked pointers stay valid.
			if len(stack) == 0 {
				root = append(root, tok)
				stack = append(stack, &root[len(root)-1])
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, tok)
				stack = append(stack, &parent.Children[len(parent.Children)-1])
			}
		case '/':
			name := baseName(strings.TrimSpace(body[1:]))
			if len(stack) == 0 {
				return nil, fmt.Errorf("tagstream: unexpected close tag %q", name)
			}
			open := stack[len(stack)-1]
			if open.Name != name {
				return nil, fmt.Errorf("tagstream: close tag %q does not match open tag %q", name, open.Name)
			}
			stack = stack[:len(stack)-1]
		default:
			tok := Token{Kind: KindVariable}
			if err := annotate(&tok, body); err != nil {
				return nil, err
			}
			appendToken(tok)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("tagstream: section %q is never closed", stack[len(stack)-1].Name)
	}
	return root, nil
}

// annotate splits `name`, `name:type`, or `name:schemaSource:type` into the
// token's fields. Sections only carry a type name, never a schema source.
func annotate(tok *Token, body string) error {
	parts := strings.Split(body, ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return fmt.Errorf("tagstream: tag %q has no name", body)
	}
	switch len(parts) {
	case 1:
		tok.Name = parts[0]
	case 2:
		tok.Name = parts[0]
		tok.TypeName = parts[1]
	case 3:
		if tok.Kind != KindVariable {
			return fmt.Errorf("tagstream: section %q cannot carry a schema source", parts[0])
		}
		tok.Name = parts[0]
		tok.SchemaSource = parts[1]
		tok.TypeName = parts[2]
	default:
		return fmt.Errorf("tagstream: tag %q has too many annotation segments", body)
	}
	return nil
}

func baseName(body string) string {
	if idx := strings.IndexByte(body, ':'); idx >= 0 {
		return strings.TrimSpace(body[:idx])
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
