package scheduler

import (
	"container/heap"

	"github.com/roach88/hysim/internal/actor"
)

// digraph is a dependency graph over a fixed member list. Vertices are
// positions in members; ties in topological order break by declaration index
// so schedules are reproducible.
type digraph struct {
	members []*actor.Node
	pos     map[*actor.Node]int
	out     [][]int
	indeg   []int
}

func newDigraph(members []*actor.Node) *digraph {
	g := &digraph{
		members: members,
		pos:     make(map[*actor.Node]int, len(members)),
		out:     make([][]int, len(members)),
		indeg:   make([]int, len(members)),
	}
	for i, m := range members {
		g.pos[m] = i
	}
	return g
}

func (g *digraph) has(n *actor.Node) bool {
	_, ok := g.pos[n]
	return ok
}

// addEdge records u -> v once. Vertices outside the graph are ignored.
func (g *digraph) addEdge(u, v *actor.Node) {
	iu, ok1 := g.pos[u]
	iv, ok2 := g.pos[v]
	if !ok1 || !ok2 {
		return
	}
	for _, w := range g.out[iu] {
		if w == iv {
			return
		}
	}
	g.out[iu] = append(g.out[iu], iv)
	g.indeg[iv]++
}

type declHeap struct {
	items []int
	nodes []*actor.Node
}

func (h declHeap) Len() int { return len(h.items) }
func (h declHeap) Less(i, j int) bool {
	return h.nodes[h.items[i]].Index < h.nodes[h.items[j]].Index
}
func (h declHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *declHeap) Push(x any)   { h.items = append(h.items, x.(int)) }
func (h *declHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm with a ready heap keyed by declaration
// index. ok is false when a cycle leaves vertices unsorted.
func (g *digraph) topoOrder() (order []*actor.Node, ok bool) {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &declHeap{nodes: g.members}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	order = make([]*actor.Node, 0, len(g.members))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, g.members[u])
		for _, v := range g.out[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return order, len(order) == len(g.members)
}

// reaches marks every vertex with a path to one of targets (targets
// included).
func (g *digraph) reaches(targets []*actor.Node) map[*actor.Node]bool {
	in := make([][]int, len(g.members))
	for u, vs := range g.out {
		for _, v := range vs {
			in[v] = append(in[v], u)
		}
	}

	seen := make(map[*actor.Node]bool)
	var queue []int
	for _, t := range targets {
		if i, ok := g.pos[t]; ok && !seen[t] {
			seen[t] = true
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, u := range in[v] {
			if m := g.members[u]; !seen[m] {
				seen[m] = true
				queue = append(queue, u)
			}
		}
	}
	return seen
}

// cyclePath returns one cycle as actor names, first name repeated at the
// end, or nil for an acyclic graph.
//
// Strongly connected components come from Tarjan's algorithm; the witness
// is the shortest loop through the lowest-declared member of the first
// cyclic component.
func (g *digraph) cyclePath() []string {
	for _, scc := range g.tarjanSCC() {
		if len(scc) == 1 && !g.selfLoop(scc[0]) {
			continue
		}
		start := scc[0]
		for _, v := range scc {
			if g.members[v].Index < g.members[start].Index {
				start = v
			}
		}
		inSCC := make(map[int]bool, len(scc))
		for _, v := range scc {
			inSCC[v] = true
		}
		return g.loopThrough(start, inSCC)
	}
	return nil
}

func (g *digraph) selfLoop(v int) bool {
	for _, w := range g.out[v] {
		if w == v {
			return true
		}
	}
	return false
}

func (g *digraph) tarjanSCC() [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.out[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
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

	for v := range g.members {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// loopThrough finds the shortest path start -> ... -> start inside one
// component by breadth-first search.
func (g *digraph) loopThrough(start int, inSCC map[int]bool) []string {
	parent := map[int]int{}
	queue := []int{start}
	visited := map[int]bool{}
	end := -1
	for len(queue) > 0 && end < 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.out[u] {
			if !inSCC[v] {
				continue
			}
			if v == start {
				end = u
				break
			}
			if !visited[v] {
				visited[v] = true
				parent[v] = u
				queue = append(queue, v)
			}
		}
	}
	if end < 0 {
		return nil
	}

	var rev []int
	for cur := end; cur != start; cur = parent[cur] {
		rev = append(rev, cur)
	}
	path := []string{g.members[start].Name()}
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, g.members[rev[i]].Name())
	}
	return append(path, g.members[start].Name())
}
