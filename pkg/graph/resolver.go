package graph

import (
	"sort"
)

// DFS colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// Order performs cycle detection and, if the graph is acyclic, returns a
// topological ordering of task IDs. When several tasks are ready at the same
// time, higher priority goes first, with declaration order breaking ties, so
// the ordering is deterministic for a given task list.
func (g *Graph) Order() ([]string, error) {
	if cycle := g.findCycle(); cycle != nil {
		return nil, &DependencyCycleError{Cycle: cycle}
	}

	remaining := make(map[string]int, len(g.tasks))
	for _, task := range g.tasks {
		remaining[task.ID] = len(g.incoming[task.ID])
	}

	ready := make([]string, 0, len(g.tasks))
	for _, task := range g.tasks {
		if remaining[task.ID] == 0 {
			ready = append(ready, task.ID)
		}
	}

	order := make([]string, 0, len(g.tasks))

	for len(ready) > 0 {
		g.sortReady(ready)

		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, dependent := range g.outgoing[current] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	return order, nil
}

// sortReady orders the ready set by priority rank, then declaration index.
func (g *Graph) sortReady(ready []string) {
	sort.SliceStable(ready, func(i, j int) bool {
		a, b := g.byID[ready[i]], g.byID[ready[j]]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}

		return g.order[ready[i]] < g.order[ready[j]]
	})
}

// findCycle runs a three-color depth-first search and returns the task IDs on
// one cycle, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	color := make(map[string]int, len(g.tasks))
	parent := make(map[string]string, len(g.tasks))

	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray

		for _, dependent := range g.outgoing[id] {
			switch color[dependent] {
			case white:
				parent[dependent] = id
				if visit(dependent) {
					return true
				}
			case gray:
				// Back edge: walk parents from id back to dependent.
				cycle = []string{dependent}
				for current := id; current != dependent; current = parent[current] {
					cycle = append(cycle, current)
				}

				return true
			}
		}

		color[id] = black

		return false
	}

	for _, task := range g.tasks {
		if color[task.ID] == white && visit(task.ID) {
			return cycle
		}
	}

	return nil
}
