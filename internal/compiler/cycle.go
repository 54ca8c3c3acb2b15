package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/library"
)

// LoopWarning describes a feedback loop between actors.
//
// Loops through an integrator or an event detector are how hybrid models
// are built and are reported as "info". A loop made only of direct
// feedthrough actors is an algebraic loop the scheduler will reject, and is
// reported as a "warning" so `hysim validate` flags it before a run.
type LoopWarning struct {
	Path    []string `json:"path"`    // Loop path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeLoops performs static loop analysis on a model's connections.
//
// The algorithm:
//  1. Build the actor → actor graph from connections (boundary ports are
//     ignored since they lead out of this level)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a loop
//
// Subsystem bodies are analysed recursively with their path prefixed.
// A model with no loops returns an empty list.
func AnalyzeLoops(spec *ModelSpec) []LoopWarning {
	warnings := []LoopWarning{}
	analyzeLevel(spec, "", &warnings)
	return warnings
}

func analyzeLevel(spec *ModelSpec, prefix string, out *[]LoopWarning) {
	caps := make(map[string]actor.Capability, len(spec.Actors))
	var order []string
	for _, a := range spec.Actors {
		if a.Kind == SubsystemKind {
			// A subsystem integrates internally but feeds through its
			// boundary at the outer time.
			caps[a.Name] = actor.CapStepSizeControl
			if a.Body != nil {
				analyzeLevel(a.Body, prefix+a.Name+".", out)
			}
		} else if built, err := library.New(a.Kind, a.Name, a.Params); err == nil {
			caps[a.Name] = actor.CapabilitiesOf(built)
		}
		order = append(order, a.Name)
	}

	graph := buildDependencyGraph(spec.Connections, order)

	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			*out = append(*out, loopSCCToWarning(scc, graph, caps, prefix))
		}
	}
}

// dependencyGraph maps actor → actors its outputs feed.
type dependencyGraph map[string][]string

func buildDependencyGraph(conns []ConnectionSpec, actors []string) dependencyGraph {
	graph := make(dependencyGraph, len(actors))
	for _, a := range actors {
		graph[a] = []string{}
	}
	for _, c := range conns {
		from, _, ok1 := strings.Cut(c.From, ".")
		to, _, ok2 := strings.Cut(c.To, ".")
		if !ok1 || !ok2 {
			continue
		}
		if _, known := graph[from]; !known {
			continue
		}
		if _, known := graph[to]; !known {
			continue
		}
		graph[from] = append(graph[from], to)
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm,
// visiting roots in declaration order so the result is deterministic.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
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

		// v is a root: pop its component
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
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// loopSCCToWarning converts an SCC to a LoopWarning, naming the actor that
// breaks the loop when there is one.
func loopSCCToWarning(scc []string, graph dependencyGraph, caps map[string]actor.Capability, prefix string) LoopWarning {
	path := reconstructCyclePath(scc, graph)
	for i := range path {
		path[i] = prefix + path[i]
	}
	pathStr := strings.Join(path, " → ")

	for _, p := range path {
		c := caps[strings.TrimPrefix(p, prefix)]
		if c.Has(actor.CapDynamic) || c.Has(actor.CapEventGenerator) {
			return LoopWarning{
				Path:    path,
				Message: fmt.Sprintf("Feedback loop %s is broken by %s", pathStr, p),
				Level:   "info",
			}
		}
	}
	return LoopWarning{
		Path:    path,
		Message: fmt.Sprintf("Algebraic loop detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at the component's root, follow edges to other SCC
// members, continue until we return to the start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Tarjan pops the root last.
	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
