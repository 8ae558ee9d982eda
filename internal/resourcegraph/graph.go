// Package resourcegraph implements dependency ordering over three
// resource kinds — Column, Pipeline, Stream — combining Kahn's-algorithm
// leveling with DFS cycle extraction for diagnosable cyclic-dependency
// errors.
package resourcegraph

import (
	"sort"

	"github.com/simforge/simforge/pkg/simerrors"
)

// ResourceKind identifies what a Resource names.
type ResourceKind int

const (
	Column ResourceKind = iota
	Pipeline
	Stream
)

func (k ResourceKind) String() string {
	switch k {
	case Column:
		return "column"
	case Pipeline:
		return "pipeline"
	case Stream:
		return "stream"
	default:
		return "unknown"
	}
}

// Resource is anything whose availability must be ordered relative to
// another resource.
type Resource struct {
	Kind ResourceKind
	Name string
}

func (r Resource) key() string {
	return r.Kind.String() + ":" + r.Name
}

type node struct {
	resource Resource
	producer string
	deps     []Resource
}

// Graph tracks declared resources, their producers, and their
// dependencies, and linearizes them at Finalize.
type Graph struct {
	nodes map[string]*node
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Declare registers r's producer and declared dependencies. A second
// Declare call for the same resource fails — each resource has at most
// one producer.
func (g *Graph) Declare(r Resource, producer string, deps []Resource) error {
	if existing, ok := g.nodes[r.key()]; ok {
		return simerrors.NewComponentContractError(producer,
			"resource "+r.Kind.String()+" \""+r.Name+"\" already has a producer ("+existing.producer+")", nil)
	}
	g.nodes[r.key()] = &node{resource: r, producer: producer, deps: append([]Resource(nil), deps...)}
	return nil
}

// Finalize computes a topological order placing each resource's producer
// before its dependents (mirroring dag.go's direction), detects
// unresolved dependencies, and detects cycles via DFS (mirroring
// dependency_graph.go's DetectCycles).
func (g *Graph) Finalize() ([]Resource, error) {
	// outgoing[k] = the set of keys k depends on (must come before k).
	outgoing := make(map[string][]string, len(g.nodes))
	incoming := make(map[string][]string, len(g.nodes))

	for key, n := range g.nodes {
		for _, dep := range n.deps {
			depKey := dep.key()
			if _, ok := g.nodes[depKey]; !ok {
				return nil, simerrors.NewUnresolvedDependencyError(n.resource.Name, dep.Name)
			}
			outgoing[key] = append(outgoing[key], depKey)
			incoming[depKey] = append(incoming[depKey], key)
		}
	}

	remaining := make(map[string]int, len(g.nodes))
	for key := range g.nodes {
		remaining[key] = len(outgoing[key])
	}

	var queue []string
	for key, deg := range remaining {
		if deg == 0 {
			queue = append(queue, key)
		}
	}
	sort.Strings(queue)

	var order []Resource
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, g.nodes[current].resource)

		dependents := append([]string(nil), incoming[current]...)
		sort.Strings(dependents)
		for _, dep := range dependents {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(g.nodes) {
		path := g.detectCycle()
		return nil, simerrors.NewCyclicDependencyError(path)
	}

	return order, nil
}

func (g *Graph) detectCycle() []string {
	visited := make(map[string]bool)
	stack := make(map[string]bool)
	var path []string
	var cycle []string

	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outgoing := make(map[string][]string, len(g.nodes))
	for key, n := range g.nodes {
		for _, dep := range n.deps {
			outgoing[key] = append(outgoing[key], dep.key())
		}
		sort.Strings(outgoing[key])
	}

	var dfs func(string) bool
	dfs = func(key string) bool {
		visited[key] = true
		stack[key] = true
		path = append(path, key)

		for _, dep := range outgoing[key] {
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			} else if stack[dep] {
				idx := len(path) - 1
				for idx >= 0 && path[idx] != dep {
					idx--
				}
				if idx >= 0 {
					cycle = append([]string(nil), path[idx:]...)
					return true
				}
			}
		}

		stack[key] = false
		path = path[:len(path)-1]
		return false
	}

	for _, key := range keys {
		if !visited[key] {
			if dfs(key) {
				break
			}
		}
	}

	names := make([]string, 0, len(cycle))
	for _, key := range cycle {
		names = append(names, g.nodes[key].resource.Name)
	}
	return names
}
