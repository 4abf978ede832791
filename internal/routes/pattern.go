// Package routes implements the route protection engine: compiled path
// patterns, the registry of protected routes, the route tree walker that
// discovers them at startup, and the request-time matcher that decides
// whether an incoming path falls under a protected pattern.
package routes

import (
	"fmt"
	"regexp"
	"strings"
)

// converterRegex maps a path converter name to the regular expression
// fragment it matches. The set mirrors the converters accepted in route
// templates such as "blog/<int:year>/<str:slug>/".
var converterRegex = map[string]string{
	"str":  `[^/]+`,
	"int":  `[0-9]+`,
	"slug": `[-a-zA-Z0-9_]+`,
	"uuid": `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`,
	"path": `.+`,
}

var paramNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PathPattern is a compiled route template. The template is kept verbatim;
// String returns it unchanged so it can serve as the canonical path string
// tokens are issued against.
type PathPattern struct {
	template string
	re       *regexp.Regexp
	params   []string
}

// CompilePattern parses a route template into a PathPattern. Literal text is
// matched exactly; segments of the form <converter:name> (or <name>, which
// implies str) capture a named parameter. Malformed templates return an
// error; callers treat that as fatal at startup.
func CompilePattern(template string) (*PathPattern, error) {
	var (
		expr   strings.Builder
		params []string
	)
	expr.WriteString("^")

	rest := template
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '<')
		if open == -1 {
			if strings.ContainsRune(rest, '>') {
				return nil, fmt.Errorf("routes: unbalanced '>' in template %q", template)
			}
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		expr.WriteString(regexp.QuoteMeta(rest[:open]))
		rest = rest[open+1:]
		closeIdx := strings.IndexByte(rest, '>')
		if closeIdx == -1 {
			return nil, fmt.Errorf("routes: unbalanced '<' in template %q", template)
		}
		placeholder := rest[:closeIdx]
		rest = rest[closeIdx+1:]

		conv, name := "str", placeholder
		if i := strings.IndexByte(placeholder, ':'); i != -1 {
			conv, name = placeholder[:i], placeholder[i+1:]
		}
		frag, ok := converterRegex[conv]
		if !ok {
			return nil, fmt.Errorf("routes: unknown converter %q in template %q", conv, template)
		}
		if !paramNameRegex.MatchString(name) {
			return nil, fmt.Errorf("routes: invalid parameter name %q in template %q", name, template)
		}
		fmt.Fprintf(&expr, "(?P<%s>%s)", name, frag)
		params = append(params, name)
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("routes: cannot compile template %q: %w", template, err)
	}
	return &PathPattern{template: template, re: re, params: params}, nil
}

// MustCompilePattern is CompilePattern for templates known-good at compile
// time, mainly tests and programmatic registration.
func MustCompilePattern(template string) *PathPattern {
	p, err := CompilePattern(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Match attempts to match the beginning of path against the pattern. On
// success it returns the unmatched suffix and the captured parameters.
func (p *PathPattern) Match(path string) (suffix string, params map[string]string, ok bool) {
	loc := p.re.FindStringSubmatchIndex(path)
	if loc == nil {
		return "", nil, false
	}
	params = make(map[string]string, len(p.params))
	for i, name := range p.re.SubexpNames() {
		if name == "" || loc[2*i] == -1 {
			continue
		}
		params[name] = path[loc[2*i]:loc[2*i+1]]
	}
	return path[loc[1]:], params, true
}

// String returns the original template text.
func (p *PathPattern) String() string {
	return p.template
}

// StaticPrefix returns the literal portion of the template up to (not
// including) the first dynamic segment. Used to scope cookies issued for
// this pattern.
func (p *PathPattern) StaticPrefix() string {
	if i := strings.IndexByte(p.template, '<'); i != -1 {
		return p.template[:i]
	}
	return p.template
}
