// Package deptracker notifies the dependency graph service that a task
// reached a terminal resolution, so tasks blocked on it can be unblocked
// or themselves marked exception. The resolver only ever calls this on
// the terminal path — the retry path keeps the task group open.
package deptracker

import "context"

// DependencyTracker resolves a task within its task group / scheduler
// scope.
type DependencyTracker interface {
	ResolveTask(ctx context.Context, taskID, taskGroupID, schedulerID, resolution string) error
}

// Resolution values the resolver is ever allowed to report.
const ResolutionException = "exception"
