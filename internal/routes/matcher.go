package routes

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Match decides whether requestPath falls under a protected route. It
// returns the canonical protected path of the first route that matches, or
// ok=false when no route covers the path. requestPath is the URL path as
// received, with its leading slash.
//
// A route matches when, after stripping the leading slash and the route's
// prefix, the pattern matches the remainder and the boundary rule holds:
// a template not ending in "/" requires the unmatched suffix to be empty or
// to begin with "/" (so a protected "admin" covers /admin and /admin/users
// but not /admin-panel), while a template ending in "/" covers any subpath.
//
// A predicate returning false skips the route for this parameter
// combination. A panicking predicate fails safe: the path is treated as
// protected.
func (reg *Registry) Match(requestPath string) (protectedPath string, ok bool) {
	stripped := strings.TrimLeft(requestPath, "/")
	for _, route := range reg.snapshot() {
		remainder, found := strings.CutPrefix(stripped, route.Prefix)
		if !found {
			continue
		}
		suffix, params, matched := route.Pattern.Match(remainder)
		if !matched {
			continue
		}
		if !strings.HasSuffix(route.Pattern.String(), "/") {
			if suffix != "" && !strings.HasPrefix(suffix, "/") {
				continue
			}
		}
		if route.Predicate != nil && !evalPredicate(route, requestPath, params) {
			continue
		}
		return route.Path(), true
	}
	return "", false
}

// evalPredicate runs a caller-supplied predicate, converting a panic into
// "protected": denying a public page is recoverable, exposing a private one
// is not.
func evalPredicate(route *ProtectedRoute, requestPath string, params map[string]string) (protected bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("error evaluating protect predicate for path %s: %v", requestPath, r)
			protected = true
		}
	}()
	return route.Predicate(params)
}
