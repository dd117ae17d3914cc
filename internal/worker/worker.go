package worker

import (
	"context"
	"time"
)

// Worker is one background job. Run performs a single pass and is
// called from the registry's poll loop or a manual trigger.
type Worker interface {
	// Name returns the unique identifier for this worker
	Name() string

	// Run performs one pass of the job
	Run(ctx context.Context) error
}

// Config holds per-worker scheduling settings.
type Config struct {
	// Enabled determines if the worker should run
	Enabled bool
	// Interval between runs. Non-positive falls back to one hour.
	Interval time.Duration
}
