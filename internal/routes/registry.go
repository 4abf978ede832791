package routes

import (
	"fmt"
	"sync"
)

// Predicate decides, from the parameters captured while matching a dynamic
// pattern, whether that concrete URL variant is actually protected. It lets
// one template serve both public and private content by parameter value.
type Predicate func(params map[string]string) bool

// ProtectedRoute is a single registry entry. Routes are immutable once
// registered.
type ProtectedRoute struct {
	Prefix    string
	Pattern   *PathPattern
	Predicate Predicate
}

// Path returns the canonical protected path: the prefix joined with the
// literal pattern template, parameter placeholders unsubstituted. This is
// the string access tokens are issued against.
func (r *ProtectedRoute) Path() string {
	return r.Prefix + r.Pattern.String()
}

// Registry holds the set of protected routes. It is built once at startup
// by walking the route tree and is read-mostly afterwards; registration is
// guarded by a mutex, reads take the read lock. An explicit Registry value
// is injected into the matcher and middleware rather than kept as package
// state, so tests can build isolated instances.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*ProtectedRoute
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]*ProtectedRoute)}
}

// Register adds a protected route. Registering the same prefix and template
// again is idempotent; the later predicate wins.
func (reg *Registry) Register(prefix string, pattern *PathPattern, predicate Predicate) {
	route := &ProtectedRoute{Prefix: prefix, Pattern: pattern, Predicate: predicate}
	reg.mu.Lock()
	reg.routes[route.Path()] = route
	reg.mu.Unlock()
}

// ProtectedPaths returns the canonical path of every registered route, in
// unspecified order. Used for diagnostics and for presenting valid path
// choices when issuing tokens.
func (reg *Registry) ProtectedPaths() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	paths := make([]string, 0, len(reg.routes))
	for path := range reg.routes {
		paths = append(paths, path)
	}
	return paths
}

// Contains reports whether path is the canonical path of a registered route.
func (reg *Registry) Contains(path string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.routes[path]
	return ok
}

// Len returns the number of registered routes.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.routes)
}

// Adopt replaces this registry's routes with those of other. Used on
// config hot-reload so a route tree that fails to compile never leaves the
// live registry half-populated.
func (reg *Registry) Adopt(other *Registry) {
	other.mu.RLock()
	replacement := make(map[string]*ProtectedRoute, len(other.routes))
	for path, route := range other.routes {
		replacement[path] = route
	}
	other.mu.RUnlock()

	reg.mu.Lock()
	reg.routes = replacement
	reg.mu.Unlock()
}

// Reset removes all registered routes. Test isolation only.
func (reg *Registry) Reset() {
	reg.mu.Lock()
	reg.routes = make(map[string]*ProtectedRoute)
	reg.mu.Unlock()
}

// snapshot returns the current route set for iteration without holding the
// lock during matching (predicates are caller-supplied and must not run
// under the registry lock).
func (reg *Registry) snapshot() []*ProtectedRoute {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	routes := make([]*ProtectedRoute, 0, len(reg.routes))
	for _, route := range reg.routes {
		routes = append(routes, route)
	}
	return routes
}

// Node is one node of the externally-provided route tree: either a Group
// with children or a terminal Leaf.
type Node interface {
	node()
}

// Group is an interior tree node carrying a path template segment and a
// sub-tree. A protected group protects everything beneath it.
type Group struct {
	Route     string
	Children  []Node
	Protected bool
	Predicate Predicate
}

// Leaf is a terminal tree node.
type Leaf struct {
	Route     string
	Protected bool
	Predicate Predicate
}

func (Group) node() {}
func (Leaf) node()  {}

// Walk traverses the route tree and registers every protected node. A
// protected group is registered once and not descended into: everything
// under it is implicitly covered. An unprotected group contributes its
// template to the prefix of its children. Malformed templates abort the
// walk; callers treat that as fatal at startup.
func (reg *Registry) Walk(nodes []Node, prefix string) error {
	for _, n := range nodes {
		switch node := n.(type) {
		case Group:
			if node.Protected {
				pattern, err := CompilePattern(node.Route)
				if err != nil {
					return err
				}
				reg.Register(prefix, pattern, node.Predicate)
				continue
			}
			if err := reg.Walk(node.Children, prefix+node.Route); err != nil {
				return err
			}
		case Leaf:
			if !node.Protected {
				continue
			}
			pattern, err := CompilePattern(node.Route)
			if err != nil {
				return err
			}
			reg.Register(prefix, pattern, node.Predicate)
		default:
			return fmt.Errorf("routes: unknown tree node %T", n)
		}
	}
	return nil
}
