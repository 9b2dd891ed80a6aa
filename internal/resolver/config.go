// Package resolver implements the Claim Expiration Resolver's three core
// components: the Iteration Driver, the Poll Fan-out, and the Message
// Handler.
package resolver

import (
	"time"

	"github.com/clusterq/claimresolver/internal/constants"
)

// Config holds the resolver's tunables. Built with a fluent With* option
// style rather than a functional-options constructor — chained With*
// setters on a value type.
type Config struct {
	PollingDelay     time.Duration
	Parallelism      int
	MaxFailures      int
	MaxIterationTime time.Duration
	BatchSize        int

	// SweepInterval and SweepEnabled configure the reconciliation sweep
	// (internal/sweep).
	SweepInterval time.Duration
	SweepEnabled  bool
}

// DefaultConfig returns the resolver's documented defaults. Parallelism
// and PollingDelay have no mandated default — a caller must set them
// explicitly — so DefaultConfig leaves them at their zero value on
// purpose.
func DefaultConfig() Config {
	return Config{
		MaxFailures:      constants.DefaultMaxFailures,
		MaxIterationTime: constants.DefaultMaxIterationTime * time.Second,
		BatchSize:        constants.DefaultBatchSize,
		SweepInterval:    constants.DefaultSweepIntervalMin * time.Minute,
		SweepEnabled:     true,
	}
}

func (c Config) WithPollingDelay(d time.Duration) Config {
	c.PollingDelay = d
	return c
}

func (c Config) WithParallelism(n int) Config {
	c.Parallelism = n
	return c
}

func (c Config) WithMaxFailures(n int) Config {
	c.MaxFailures = n
	return c
}

func (c Config) WithMaxIterationTime(d time.Duration) Config {
	c.MaxIterationTime = d
	return c
}

func (c Config) WithBatchSize(n int) Config {
	c.BatchSize = n
	return c
}

func (c Config) WithSweepInterval(d time.Duration) Config {
	c.SweepInterval = d
	return c
}

func (c Config) WithSweepEnabled(enabled bool) Config {
	c.SweepEnabled = enabled
	return c
}
