package resolver

import (
	"github.com/clusterq/claimresolver/internal/advisoryqueue"
	"github.com/clusterq/claimresolver/internal/deptracker"
	"github.com/clusterq/claimresolver/internal/notify"
	"github.com/clusterq/claimresolver/internal/pendingqueue"
	"github.com/clusterq/claimresolver/internal/store"
	"github.com/clusterq/claimresolver/internal/telemetry"
)

// Dependencies are the resolver's external collaborator adapters,
// constructor-injected — the Resolver holds no global state.
type Dependencies struct {
	Store             store.TaskStore
	AdvisoryQueue     advisoryqueue.AdvisoryQueue
	PendingQueue      pendingqueue.PendingQueue
	Publisher         notify.Publisher
	DependencyTracker deptracker.DependencyTracker
	Logger            telemetry.Logger
	ErrorReporter     telemetry.ErrorReporter
	AlertSink         telemetry.AlertSink
}

// Resolver wires the Iteration Driver, Poll Fan-out, and Message Handler
// into the single long-running process component.
type Resolver struct {
	driver *IterationDriver
}

// New builds a Resolver from its configuration and dependencies.
func New(cfg Config, deps Dependencies) *Resolver {
	handler := &MessageHandler{
		Store:        deps.Store,
		PendingQueue: deps.PendingQueue,
		Publisher:    deps.Publisher,
		DepTracker:   deps.DependencyTracker,
		Logger:       deps.Logger,
		Errors:       deps.ErrorReporter,
	}

	fanout := &PollFanout{
		Queue:       deps.AdvisoryQueue,
		Handler:     handler,
		Parallelism: cfg.Parallelism,
		Logger:      deps.Logger,
		Errors:      deps.ErrorReporter,
	}

	driver := &IterationDriver{
		Fanout:           fanout,
		PollingDelay:     cfg.PollingDelay,
		MaxIterationTime: cfg.MaxIterationTime,
		MaxFailures:      cfg.MaxFailures,
		Alert:            deps.AlertSink,
		Errors:           deps.ErrorReporter,
	}

	return &Resolver{driver: driver}
}

// Start begins iterating; it returns once the first iteration has begun.
func (r *Resolver) Start() {
	r.driver.Start()
}

// Terminate requests graceful shutdown and blocks until the current
// iteration completes and no further iterations will begin.
func (r *Resolver) Terminate() {
	r.driver.Terminate()
}
