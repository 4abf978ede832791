package routes

import (
	"github.com/magicgate/magicgate/internal/config"
)

// FromConfig converts the declarative route tree from the configuration
// file into walker nodes. A config entry with children becomes a Group,
// otherwise a Leaf. Predicates cannot be expressed in YAML; programmatic
// registration attaches them directly.
func FromConfig(entries []config.Route) []Node {
	nodes := make([]Node, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Routes) > 0 {
			nodes = append(nodes, Group{
				Route:     entry.Path,
				Children:  FromConfig(entry.Routes),
				Protected: entry.Protected,
			})
			continue
		}
		nodes = append(nodes, Leaf{
			Route:     entry.Path,
			Protected: entry.Protected,
		})
	}
	return nodes
}

// BuildRegistry walks the configured route tree into a fresh registry.
// Malformed templates surface as an error; startup treats that as fatal.
func BuildRegistry(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.Walk(FromConfig(cfg.Routes), ""); err != nil {
		return nil, err
	}
	return reg, nil
}
