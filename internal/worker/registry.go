package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when triggering a worker that was never
// registered.
var ErrNotFound = errors.New("worker not found")

// ErrDisabled is returned when triggering a worker whose config
// disables it.
var ErrDisabled = errors.New("worker is disabled")

// Registry manages all registered workers and their lifecycle.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
	configs map[string]Config
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates a new worker registry
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
		configs: make(map[string]Config),
	}
}

// Register adds a worker to the registry
func (r *Registry) Register(w Worker, config Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := w.Name()
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("worker %s already registered", name)
	}

	r.workers[name] = w
	r.configs[name] = config
	log.Printf("Registered worker: %s (enabled=%v, interval=%s)",
		name, config.Enabled, config.Interval)

	return nil
}

// Start begins the poll loop of every enabled worker
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, w := range r.workers {
		config := r.configs[name]
		if !config.Enabled {
			log.Printf("Worker %s is disabled, skipping", name)
			continue
		}
		r.startPollLoop(name, w, config)
	}
}

// Stop cancels all poll loops and waits for in-flight runs to finish
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Trigger runs a worker once, outside its schedule
func (r *Registry) Trigger(ctx context.Context, name string) error {
	r.mu.RLock()
	w, exists := r.workers[name]
	config := r.configs[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !config.Enabled {
		return fmt.Errorf("%w: %s", ErrDisabled, name)
	}

	return r.runJob(ctx, name, w)
}

// ListWorkers returns information about registered workers, sorted by
// name.
func (r *Registry) ListWorkers() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.workers))
	for name := range r.workers {
		config := r.configs[name]
		infos = append(infos, Info{
			Name:     name,
			Enabled:  config.Enabled,
			Interval: config.Interval.String(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Info provides read-only information about a worker
type Info struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

// startPollLoop starts a goroutine that runs the worker on schedule.
// Callers hold the registry lock.
func (r *Registry) startPollLoop(name string, w Worker, config Config) {
	interval := config.Interval
	if interval <= 0 {
		log.Printf("No poll interval for %s, using 1h default", name)
		interval = time.Hour
	}

	ctx := r.ctx
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Run an initial pass
		if err := r.runJob(ctx, name, w); err != nil {
			log.Printf("Initial run failed for %s: %v", name, err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Printf("Stopping poll loop for %s", name)
				return
			case <-ticker.C:
				if err := r.runJob(ctx, name, w); err != nil {
					log.Printf("Run failed for %s: %v", name, err)
				}
			}
		}
	}()

	log.Printf("Started poll loop for %s (interval=%s)", name, interval)
}

// runJob executes one pass of a worker
func (r *Registry) runJob(ctx context.Context, name string, w Worker) error {
	log.Printf("Running worker: %s", name)

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
