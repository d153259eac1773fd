package graph

import (
	"github.com/planforge/planforge/pkg/models"
)

// Graph is the validated dependency graph of a task list. Adjacency is derived
// from declared dependency IDs, so two lists with the same tasks in different
// orders produce identical edges. Declaration order is kept only as the
// stability tie-break for ordering.
type Graph struct {
	tasks    []*models.Task          // declaration order
	byID     map[string]*models.Task
	order    map[string]int          // task ID -> declaration index
	incoming map[string][]string     // task ID -> dependency IDs
	outgoing map[string][]string     // task ID -> dependent IDs
}

// New builds a Graph from a task list. It fails with an InvalidRequestError
// when the list is empty, a task ID is duplicated, or a dependency references
// a task not present in the list. No side effects beyond allocation.
func New(tasks []*models.Task) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, &InvalidRequestError{Message: "no tasks"}
	}

	g := &Graph{
		tasks:    tasks,
		byID:     make(map[string]*models.Task, len(tasks)),
		order:    make(map[string]int, len(tasks)),
		incoming: make(map[string][]string, len(tasks)),
		outgoing: make(map[string][]string, len(tasks)),
	}

	for i, task := range tasks {
		if task.ID == "" {
			return nil, &InvalidRequestError{Message: "task ID is required"}
		}

		if _, exists := g.byID[task.ID]; exists {
			return nil, &InvalidRequestError{TaskID: task.ID, Message: "duplicate task ID"}
		}

		g.byID[task.ID] = task
		g.order[task.ID] = i
	}

	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			if _, exists := g.byID[dep]; !exists {
				return nil, &InvalidRequestError{
					TaskID:  task.ID,
					Message: "unresolved dependency " + dep,
				}
			}

			g.incoming[task.ID] = append(g.incoming[task.ID], dep)
			g.outgoing[dep] = append(g.outgoing[dep], task.ID)
		}
	}

	return g, nil
}

// Tasks returns the tasks in declaration order.
func (g *Graph) Tasks() []*models.Task {
	return g.tasks
}

// TaskByID returns the task with the given ID, or nil.
func (g *Graph) TaskByID(id string) *models.Task {
	return g.byID[id]
}

// Dependencies returns the IDs the given task depends on.
func (g *Graph) Dependencies(id string) []string {
	return g.incoming[id]
}

// Dependents returns the IDs of tasks that declare the given task as a
// dependency.
func (g *Graph) Dependents(id string) []string {
	return g.outgoing[id]
}

// TransitiveDependents returns every task reachable from the given task along
// dependency edges, i.e. every task that directly or indirectly depends on it.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), g.outgoing[id]...)

	var result []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if seen[current] {
			continue
		}

		seen[current] = true
		result = append(result, current)
		queue = append(queue, g.outgoing[current]...)
	}

	return result
}
