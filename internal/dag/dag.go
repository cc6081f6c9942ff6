// Package dag loads the pipeline definition: which steps exist and which
// steps they read from. The graph is static; executing it is internal/run's
// job.
package dag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/terracehq/terrace/internal/steps"
)

// file is the YAML shape of one DAG file. Includes pull in sub-DAGs by
// path relative to the including file.
type file struct {
	Include []string            `yaml:"include,omitempty"`
	Steps   map[string][]string `yaml:"steps"`
}

type node struct {
	id         string
	uri        steps.URI
	deps       map[string]*node
	dependents map[string]*node
}

// Graph is the full step dependency graph. Edges point from a dependency
// to the steps that read it.
type Graph struct {
	nodes map[string]*node
}

// Load reads a DAG file, resolves its includes recursively, validates
// every URI, and checks for cycles. Including the same file twice is fine;
// an include cycle is not.
func Load(path string) (*Graph, error) {
	g := &Graph{nodes: map[string]*node{}}
	if err := g.loadFile(path, map[string]bool{}); err != nil {
		return nil, err
	}
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) loadFile(path string, visiting map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if visiting[abs] {
		return fmt.Errorf("dag: include cycle through %s", path)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	raw, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("dag: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("dag: parse %s: %w", path, err)
	}

	for _, inc := range f.Include {
		if err := g.loadFile(filepath.Join(filepath.Dir(abs), inc), visiting); err != nil {
			return err
		}
	}
	for stepID, deps := range f.Steps {
		if err := g.addStep(stepID, deps); err != nil {
			return fmt.Errorf("dag: %s: %w", path, err)
		}
	}
	return nil
}

func (g *Graph) addStep(stepID string, deps []string) error {
	n, err := g.ensureNode(stepID)
	if err != nil {
		return err
	}
	for _, depID := range deps {
		if depID == stepID {
			return fmt.Errorf("step %s depends on itself", stepID)
		}
		dep, err := g.ensureNode(depID)
		if err != nil {
			return fmt.Errorf("step %s: %w", stepID, err)
		}
		n.deps[depID] = dep
		dep.dependents[stepID] = n
	}
	return nil
}

// ensureNode registers a step by URI. Dependencies that never appear as
// keys (typically snapshots) become leaf nodes.
func (g *Graph) ensureNode(id string) (*node, error) {
	if n, ok := g.nodes[id]; ok {
		return n, nil
	}
	uri, err := steps.Parse(id)
	if err != nil {
		return nil, err
	}
	n := &node{
		id:         id,
		uri:        uri,
		deps:       map[string]*node{},
		dependents: map[string]*node{},
	}
	g.nodes[id] = n
	return n, nil
}

// Steps returns every step ID, sorted.
func (g *Graph) Steps() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether the graph contains the step.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// URI returns the parsed URI of a step.
func (g *Graph) URI(id string) (steps.URI, error) {
	n, ok := g.nodes[id]
	if !ok {
		return steps.URI{}, fmt.Errorf("dag: unknown step %s", id)
	}
	return n.uri, nil
}

// Dependencies returns the direct dependencies of a step, sorted.
func (g *Graph) Dependencies(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("dag: unknown step %s", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the steps that directly read a step, sorted.
func (g *Graph) Dependents(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("dag: unknown step %s", id)
	}
	return sortedKeys(n.dependents), nil
}

// detectCycles runs a three-color depth-first search over the graph.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("dag: cycle detected involving %s", n.id)
		}
		temporary[n.id] = true
		for _, dep := range n.dependents {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}
	for _, id := range g.Steps() {
		if !permanent[id] {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Filter returns the subgraph of steps whose ID contains any of the given
// substrings, closed over all transitive dependencies, and over transitive
// dependents when downstream is set. No patterns selects everything.
func (g *Graph) Filter(patterns []string, downstream bool) *Graph {
	if len(patterns) == 0 {
		return g
	}
	selected := map[string]bool{}
	for id := range g.nodes {
		for _, p := range patterns {
			if strings.Contains(id, p) {
				selected[id] = true
			}
		}
	}
	if downstream {
		var expand func(n *node)
		expand = func(n *node) {
			for id, dep := range n.dependents {
				if !selected[id] {
					selected[id] = true
					expand(dep)
				}
			}
		}
		for id := range g.nodes {
			if selected[id] {
				expand(g.nodes[id])
			}
		}
	}
	// Close over dependencies so every selected step can actually run.
	var include func(n *node)
	include = func(n *node) {
		for id, dep := range n.deps {
			if !selected[id] {
				selected[id] = true
				include(dep)
			}
		}
	}
	for id := range g.nodes {
		if selected[id] {
			include(g.nodes[id])
		}
	}

	sub := &Graph{nodes: map[string]*node{}}
	for id := range selected {
		orig := g.nodes[id]
		sub.nodes[id] = &node{id: id, uri: orig.uri, deps: map[string]*node{}, dependents: map[string]*node{}}
	}
	for id := range selected {
		for depID := range g.nodes[id].deps {
			if selected[depID] {
				sub.nodes[id].deps[depID] = sub.nodes[depID]
				sub.nodes[depID].dependents[id] = sub.nodes[id]
			}
		}
	}
	return sub
}

// TopoOrder returns a deterministic topological order: Kahn's algorithm
// with ties broken alphabetically.
func (g *Graph) TopoOrder() []string {
	indegree := map[string]int{}
	for id, n := range g.nodes {
		indegree[id] = len(n.deps)
	}
	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for depID := range g.nodes[id].dependents {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = insertSorted(ready, depID)
			}
		}
	}
	return order
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func sortedKeys(m map[string]*node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
