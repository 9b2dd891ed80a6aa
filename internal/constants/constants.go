// Package constants holds the fixed advisory-lock ID and resolver
// defaults as a small flat list rather than a config object, because
// these values are never meant to vary at runtime.
package constants

// SweepLock is the pg_advisory_lock ID guarding the reconciliation sweep
// so only one resolver instance in a horizontally-scaled deployment runs
// it at a time.
const SweepLock = 9001

// Defaults for the resolver's configuration options.
const (
	DefaultMaxFailures      = 10
	DefaultMaxIterationTime = 10 * 60 // seconds
	DefaultBatchSize        = 32
	DefaultSweepIntervalMin = 5
)
