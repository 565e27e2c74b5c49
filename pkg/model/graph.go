package model

import (
	"fmt"
	"strings"
)

// Builder assembles the resource graph during the application build phase.
// Topology is mutable until Seal; after that no resource or edge can be added
// or removed, and annotation collections become read-only.
type Builder struct {
	resources map[string]*Resource
	order     []string
	sealed    bool
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{resources: make(map[string]*Resource)}
}

// AddResource adds a named resource to the graph. A duplicate name fails with
// a configuration error and leaves the graph unchanged.
func (b *Builder) AddResource(name string, kind ResourceKind) (*Resource, error) {
	if b.sealed {
		return nil, NewConfigError("graph is sealed", nil).
			WithCode(ErrCodeGraphSealed).WithResource(name)
	}
	if name == "" {
		return nil, NewConfigError("resource name is empty", nil).
			WithCode(ErrCodeInvalidResourceName)
	}
	if err := kind.Validate(); err != nil {
		return nil, NewConfigError("invalid resource kind", err).WithResource(name)
	}
	if _, exists := b.resources[name]; exists {
		return nil, NewConfigError(
			fmt.Sprintf("resource %q already exists", name), nil,
		).WithCode(ErrCodeDuplicateResource).WithResource(name)
	}
	r := &Resource{name: name, kind: kind, builder: b}
	b.resources[name] = r
	b.order = append(b.order, name)
	return r, nil
}

// Resource returns a resource being built, if present.
func (b *Builder) Resource(name string) (*Resource, bool) {
	r, ok := b.resources[name]
	return r, ok
}

// Seal freezes the graph topology, derives dependency edges from explicit
// references and reference-carrying annotations, validates that every edge
// targets a known resource, rejects cycles, and computes the start order.
func (b *Builder) Seal() (*Graph, error) {
	if b.sealed {
		return nil, NewConfigError("graph already sealed", nil).WithCode(ErrCodeGraphSealed)
	}

	g := &Graph{
		resources:  b.resources,
		order:      b.order,
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}

	for _, name := range b.order {
		r := b.resources[name]
		edges := append([]string(nil), r.refs...)
		for _, a := range r.annotations {
			if ref, ok := a.(Referencer); ok {
				edges = append(edges, ref.Refs()...)
			}
		}
		seen := make(map[string]bool)
		for _, target := range edges {
			if target == name || seen[target] {
				// Self-references (a resource templating its own endpoint)
				// are not dependency edges.
				continue
			}
			seen[target] = true
			if _, exists := b.resources[target]; !exists {
				return nil, NewConfigError(
					fmt.Sprintf("resource %q references unknown resource %q", name, target), nil,
				).WithCode(ErrCodeUnknownReference).WithResource(name)
			}
			g.deps[name] = append(g.deps[name], target)
			g.dependents[target] = append(g.dependents[target], name)
		}
	}

	levels, err := g.computeLevels()
	if err != nil {
		return nil, err
	}
	g.levels = levels

	b.sealed = true
	return g, nil
}

// Graph is the sealed, read-only resource graph. Concurrent readers never
// block each other; annotation callbacks may still run at resolution time but
// topology is immutable.
type Graph struct {
	resources  map[string]*Resource
	order      []string
	deps       map[string][]string
	dependents map[string][]string
	levels     [][]string
}

// Resource returns a resource by name.
func (g *Graph) Resource(name string) (*Resource, bool) {
	r, ok := g.resources[name]
	return r, ok
}

// Resources returns all resources in declaration order.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.resources[name])
	}
	return out
}

// Dependencies returns the resources that name depends on.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the resources that depend on name.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// StartOrder returns the topological start levels. Resources within one level
// have no dependency relationship and can be started in parallel; every
// resource's dependencies live in earlier levels.
func (g *Graph) StartOrder() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

// computeLevels runs Kahn's algorithm over the dependency edges, detecting
// cycles and assigning each resource to its topological level.
func (g *Graph) computeLevels() ([][]string, error) {
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		inDegree[name] = len(g.deps[name])
	}

	var current []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	var levels [][]string
	processed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		processed += len(current)

		var next []string
		for _, name := range current {
			for _, dependent := range g.dependents[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if processed != len(g.order) {
		var stuck []string
		for _, name := range g.order {
			if inDegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, NewConfigError(
			fmt.Sprintf("dependency cycle involving: %s", strings.Join(stuck, ", ")), nil,
		).WithCode(ErrCodeDependencyCycle)
	}

	return levels, nil
}
