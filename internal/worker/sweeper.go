package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"strata/internal/domain"
	"strata/internal/filestore"
	"strata/internal/pgquery"
	"strata/internal/repository/postgres"
)

// SweeperOptions configures the orphaned-attachment sweep.
type SweeperOptions struct {
	// Table holds the rows that reference attachment files.
	Table pgquery.TableName
	// Column is the table column holding bare file names.
	Column string
	// BasePath is the attachment directory to walk.
	BasePath string
	// Age is the grace period: files younger than this are never
	// touched, so uploads racing the sweep keep their files.
	Age time.Duration
	// LogQueries logs the per-file reference checks.
	LogQueries bool
}

// Sweeper removes attachment files that no row references anymore.
// Every pass runs on its own pooled session.
type Sweeper struct {
	source postgres.SessionSource
	opts   SweeperOptions
	files  postgres.FileRemover
}

// NewSweeper creates a sweeper over source.
func NewSweeper(source postgres.SessionSource, opts SweeperOptions) *Sweeper {
	return &Sweeper{
		source: source,
		opts:   opts,
		files:  filestore.NewLocal(),
	}
}

// Name implements Worker.
func (s *Sweeper) Name() string {
	return "attachment-sweeper"
}

// Run implements Worker: one sweep pass with a logged summary.
func (s *Sweeper) Run(ctx context.Context) error {
	report, err := s.Sweep(ctx)
	if err != nil {
		return err
	}

	log.Printf("Attachment sweep complete: scanned=%d removed=%d skipped=%d",
		report.Scanned, len(report.Removed), report.Skipped)
	return nil
}

// Sweep walks the attachment directory once and removes every file past
// the grace period that the reference table no longer names. Files
// still referenced, too young, or not regular files are skipped, so
// Scanned always equals removed plus skipped. A missing attachment
// directory is an empty sweep, not an error.
func (s *Sweeper) Sweep(ctx context.Context) (*domain.SweepReport, error) {
	report := &domain.SweepReport{
		Removed:  []string{},
		BasePath: filestore.NormalizeBase(s.opts.BasePath),
	}

	entries, err := os.ReadDir(s.opts.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to read attachment dir %s: %w", s.opts.BasePath, err)
	}

	sess, err := s.source.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	execOpts := postgres.DefaultExecutorOptions()
	execOpts.LogQueries = s.opts.LogQueries
	exec := postgres.NewExecutor(sess, execOpts)

	cutoff := time.Now().Add(-s.opts.Age)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		report.Scanned++

		info, err := entry.Info()
		if err != nil {
			log.Printf("Failed to stat attachment %s: %v", entry.Name(), err)
			report.Skipped++
			continue
		}
		if info.ModTime().After(cutoff) {
			report.Skipped++
			continue
		}

		name := entry.Name()
		referenced, err := exec.ValueExists(ctx, s.opts.Table, s.opts.Column, name)
		if err != nil {
			return nil, err
		}
		if referenced {
			report.Skipped++
			continue
		}

		removed, err := s.files.Remove(report.BasePath + name)
		if err != nil {
			log.Printf("Failed to remove orphaned attachment %s: %v", name, err)
		}
		if removed {
			report.Removed = append(report.Removed, name)
		} else {
			report.Skipped++
		}
	}

	return report, nil
}
