// Package graph builds and orders the task dependency graph.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Standard planning error types. Both are fatal: a plan that fails graph
// validation never starts executing.
var (
	// ErrInvalidRequest indicates a malformed task list (duplicate IDs,
	// dangling dependency references, empty input).
	ErrInvalidRequest = errors.New("invalid task list")

	// ErrDependencyCycle indicates the declared dependencies form a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// InvalidRequestError wraps task list validation failures with the offending
// task ID when one is known.
type InvalidRequestError struct {
	TaskID  string
	Message string
}

func (e *InvalidRequestError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("invalid task list: task %s: %s", e.TaskID, e.Message)
	}

	return "invalid task list: " + e.Message
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// DependencyCycleError reports a cycle through the named tasks. Cycle always
// holds at least one participating task ID.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

func (e *DependencyCycleError) Unwrap() error {
	return ErrDependencyCycle
}

// IsInvalidRequest checks if an error indicates a malformed task list.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsDependencyCycle checks if an error indicates a dependency cycle.
func IsDependencyCycle(err error) bool {
	return errors.Is(err, ErrDependencyCycle)
}
