package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Cycle levels.
const (
	LevelInfo    = "info"    // broken by a RefersTo relation
	LevelWarning = "warning" // only nullable keys; fails if the entities form a loop
	LevelError   = "error"   // only required keys; no insert order exists
)

// CycleWarning describes a reference cycle between roles.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["user", "comment", "user"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`
}

// dependencyGraph maps a role to the roles whose keys it needs before it can
// be inserted.
type dependencyGraph map[string][]string

type edge struct {
	from, to string
}

// AnalyzeCycles finds reference cycles between the roles of reg.
//
// Every BelongsTo or RefersTo relation adds an edge owner → target, every
// HasOne or HasMany relation an edge target → owner. Strongly connected
// components of that graph are cycles. A cycle that survives when all
// nullable edges are removed cannot be ordered; it is returned as an
// ErrUnbreakableCycle error in addition to its LevelError warning.
//
// An acyclic schema returns an empty warning list.
func AnalyzeCycles(reg *Registry) ([]CycleWarning, error) {
	full, required, refers := buildDependencyGraph(reg)

	warnings := []CycleWarning{}
	var errs []error

	hard := make(map[string]bool)
	for _, scc := range tarjanSCC(required) {
		if !isCycle(scc, required) {
			continue
		}
		w := cycleSCCToWarning(scc, required, LevelError)
		warnings = append(warnings, w)
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnbreakableCycle, strings.Join(w.Path, " → ")))
		for _, n := range scc {
			hard[n] = true
		}
	}

	for _, scc := range tarjanSCC(full) {
		if !isCycle(scc, full) || coveredBy(scc, hard) {
			continue
		}
		level := LevelWarning
		for _, from := range scc {
			for _, to := range full[from] {
				if refers[edge{from, to}] && slices.Contains(scc, to) {
					level = LevelInfo
				}
			}
		}
		warnings = append(warnings, cycleSCCToWarning(scc, full, level))
	}

	return warnings, errors.Join(errs...)
}

// buildDependencyGraph returns the full graph, the graph of required
// (non-nullable) edges, and the set of edges contributed by RefersTo.
func buildDependencyGraph(reg *Registry) (full, required dependencyGraph, refers map[edge]bool) {
	full = make(dependencyGraph)
	required = make(dependencyGraph)
	refers = make(map[edge]bool)

	add := func(g dependencyGraph, from, to string) {
		if !slices.Contains(g[from], to) {
			g[from] = append(g[from], to)
		}
	}

	for _, name := range reg.Roles() {
		role := reg.roles[name]
		if role.Embeddable {
			continue
		}
		// Ensure every table role exists in the graph.
		if full[name] == nil {
			full[name] = []string{}
		}
		for _, rel := range role.Relations {
			var e edge
			switch rel.Type {
			case BelongsTo, RefersTo:
				e = edge{from: name, to: rel.Target}
			case HasOne, HasMany:
				e = edge{from: rel.Target, to: name}
			default:
				continue
			}
			add(full, e.from, e.to)
			if rel.Type == RefersTo {
				refers[e] = true
			}
			if !rel.Nullable {
				add(required, e.from, e.to)
			}
		}
	}

	for _, g := range []dependencyGraph{full, required} {
		for n := range g {
			sort.Strings(g[n])
		}
	}
	return full, required, refers
}

func isCycle(scc []string, graph dependencyGraph) bool {
	return len(scc) > 1 || hasSelfLoop(scc[0], graph)
}

func coveredBy(scc []string, set map[string]bool) bool {
	for _, n := range scc {
		if !set[n] {
			return false
		}
	}
	return true
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic; each
// SCC is returned sorted.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit the SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph, level string) CycleWarning {
	var path []string
	if len(scc) == 1 {
		path = []string{scc[0], scc[0]}
	} else {
		path = reconstructCyclePath(scc, graph)
	}

	pathStr := strings.Join(path, " → ")
	var msg string
	switch level {
	case LevelError:
		msg = "Required keys form a cycle: " + pathStr
	case LevelInfo:
		msg = "Reference cycle broken by a deferred update: " + pathStr
	default:
		msg = "Nullable keys form a cycle: " + pathStr
	}
	return CycleWarning{Path: path, Message: msg, Level: level}
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool)
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
