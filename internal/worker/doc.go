// Package worker runs background maintenance jobs for Strata.
//
// Workers are periodic jobs that register with a central registry. The
// registry owns their lifecycle: it starts one poll loop per enabled
// worker, runs an initial pass immediately, and repeats on the
// configured interval until stopped. Workers can also be triggered
// manually through the admin API.
//
// # Workers
//
// Sweeper removes orphaned attachment files: files in the attachment
// directory that no database row references anymore, typically left
// behind by failed uploads or out-of-band row deletes. A grace period
// keeps it from racing in-flight uploads.
package worker
