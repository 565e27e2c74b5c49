package model

import (
	"fmt"
	"strings"
)

// Template placeholder component names.
const (
	PlaceholderHost     = "host"
	PlaceholderPort     = "port"
	PlaceholderScheme   = "scheme"
	PlaceholderUsername = "username"
	PlaceholderPassword = "password"
)

var knownPlaceholders = map[string]bool{
	PlaceholderHost:     true,
	PlaceholderPort:     true,
	PlaceholderScheme:   true,
	PlaceholderUsername: true,
	PlaceholderPassword: true,
}

type segment struct {
	text        string
	placeholder bool
}

// Template is a connection-string template. Placeholders are written as
// {host}, {port}, {scheme}, {username}, {password} and bound to components of
// a referenced endpoint at expansion time. Unknown placeholders are rejected
// at parse time, so a malformed template is a configuration error, not a
// runtime surprise.
type Template struct {
	raw      string
	segments []segment
}

// ParseTemplate parses and validates a connection-string template.
func ParseTemplate(raw string) (*Template, error) {
	t := &Template{raw: raw}
	rest := raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if rest != "" {
				t.segments = append(t.segments, segment{text: rest})
			}
			break
		}
		cl := strings.IndexByte(rest[open:], '}')
		if cl < 0 {
			return nil, NewConfigError(
				fmt.Sprintf("unterminated placeholder in template %q", raw), nil,
			).WithCode(ErrCodeBadTemplate)
		}
		if open > 0 {
			t.segments = append(t.segments, segment{text: rest[:open]})
		}
		name := rest[open+1 : open+cl]
		if !knownPlaceholders[name] {
			return nil, NewConfigError(
				fmt.Sprintf("unknown placeholder {%s} in template %q", name, raw), nil,
			).WithCode(ErrCodeBadTemplate)
		}
		t.segments = append(t.segments, segment{text: name, placeholder: true})
		rest = rest[open+cl+1:]
	}
	return t, nil
}

// MustParseTemplate parses a template and panics on error. For templates
// declared in code.
func MustParseTemplate(raw string) *Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Raw returns the original template text.
func (t *Template) Raw() string { return t.raw }

// Placeholders returns the distinct placeholder names used by the template.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range t.segments {
		if s.placeholder && !seen[s.text] {
			seen[s.text] = true
			out = append(out, s.text)
		}
	}
	return out
}

// Expand substitutes placeholder values into the template. Placeholders
// missing from values are left in their {name} form, which yields the
// format-only rendering used before an endpoint is declared.
func (t *Template) Expand(values map[string]string) string {
	var sb strings.Builder
	for _, s := range t.segments {
		if !s.placeholder {
			sb.WriteString(s.text)
			continue
		}
		if v, ok := values[s.text]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteString("{" + s.text + "}")
		}
	}
	return sb.String()
}
