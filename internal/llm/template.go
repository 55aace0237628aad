package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrTemplateSyntax is returned for templates with unbalanced or malformed braces.
var ErrTemplateSyntax = errors.New("template syntax error")

var placeholderName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Vars binds placeholder names to values for a single prompt invocation.
type Vars map[string]string

// BindingError reports placeholders that have no bound value.
type BindingError struct {
	Template string
	Missing  []string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("template %q: no value bound for %s", e.Template, strings.Join(e.Missing, ", "))
}

// Template is a prompt with named {placeholder} slots. Literal braces are
// written as {{ and }}.
type Template struct {
	name  string
	text  string
	parts []part
	names []string
}

// part is either a literal run or a placeholder reference.
type part struct {
	literal string
	name    string
}

// ParseTemplate parses text into a Template. The name is used only in errors
// and logs.
func ParseTemplate(name, text string) (Template, error) {
	t := Template{name: name, text: text}
	seen := make(map[string]bool)

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return Template{}, fmt.Errorf("%w: %q: unclosed '{' at offset %d", ErrTemplateSyntax, name, i)
			}
			field := text[i+1 : i+1+end]
			if !placeholderName.MatchString(field) {
				return Template{}, fmt.Errorf("%w: %q: invalid placeholder {%s}", ErrTemplateSyntax, name, field)
			}
			flush()
			t.parts = append(t.parts, part{name: field})
			if !seen[field] {
				seen[field] = true
				t.names = append(t.names, field)
			}
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return Template{}, fmt.Errorf("%w: %q: single '}' at offset %d", ErrTemplateSyntax, name, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustTemplate is like ParseTemplate but panics on a syntax error. It is
// meant for package-level prompt declarations.
func MustTemplate(name, text string) Template {
	t, err := ParseTemplate(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Template) Name() string { return t.name }

// Text returns the unparsed template source.
func (t Template) Text() string { return t.text }

// Placeholders returns the distinct placeholder names in order of first use.
func (t Template) Placeholders() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Missing returns the placeholders that vars does not bind.
func (t Template) Missing(vars Vars) []string {
	var missing []string
	for _, n := range t.names {
		if _, ok := vars[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Invocation is a fully rendered prompt.
type Invocation struct {
	Template string
	Prompt   string
}

// Bind renders the template. Every placeholder must be bound, otherwise a
// *BindingError is returned and nothing is rendered.
func (t Template) Bind(vars Vars) (Invocation, error) {
	if missing := t.Missing(vars); len(missing) > 0 {
		return Invocation{}, &BindingError{Template: t.name, Missing: missing}
	}
	var sb strings.Builder
	for _, p := range t.parts {
		if p.name != "" {
			sb.WriteString(vars[p.name])
			continue
		}
		sb.WriteString(p.literal)
	}
	return Invocation{Template: t.name, Prompt: sb.String()}, nil
}
