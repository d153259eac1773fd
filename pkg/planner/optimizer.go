package planner

import (
	"sort"

	"github.com/planforge/planforge/pkg/graph"
	"github.com/planforge/planforge/pkg/models"
)

// Optimize partitions a topological ordering into concurrent groups. Each
// round takes up to maxParallel tasks from the ready set (tasks whose
// dependencies are all assigned to earlier groups), higher priority first with
// topological position breaking ties. The greedy level-by-level assignment
// minimizes the number of groups for a fixed concurrency bound; it is
// deliberately duration-agnostic so group shapes stay predictable.
func Optimize(g *graph.Graph, order []string, maxParallel int) []models.TaskGroup {
	if maxParallel < 1 {
		maxParallel = 1
	}

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	assigned := make(map[string]bool, len(order))

	var groups []models.TaskGroup

	for len(assigned) < len(order) {
		ready := make([]string, 0, maxParallel)

		for _, id := range order {
			if assigned[id] {
				continue
			}

			ok := true

			for _, dep := range g.Dependencies(id) {
				if !assigned[dep] {
					ok = false

					break
				}
			}

			if ok {
				ready = append(ready, id)
			}
		}

		sort.SliceStable(ready, func(i, j int) bool {
			a, b := g.TaskByID(ready[i]), g.TaskByID(ready[j])
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() < b.Priority.Rank()
			}

			return position[ready[i]] < position[ready[j]]
		})

		if len(ready) > maxParallel {
			ready = ready[:maxParallel]
		}

		group := make(models.TaskGroup, 0, len(ready))

		for _, id := range ready {
			assigned[id] = true
			group = append(group, id)
		}

		groups = append(groups, group)
	}

	return groups
}

// EstimateDuration computes the plan estimate: the sum over groups of the
// longest task estimate within each group. Tasks with no estimate count as
// defaultEstimate rather than zero.
func EstimateDuration(g *graph.Graph, groups []models.TaskGroup, defaultEstimate int) int {
	total := 0

	for _, group := range groups {
		longest := 0

		for _, id := range group {
			estimate := g.TaskByID(id).EstimatedDuration
			if estimate <= 0 {
				estimate = defaultEstimate
			}

			if estimate > longest {
				longest = estimate
			}
		}

		total += longest
	}

	return total
}
