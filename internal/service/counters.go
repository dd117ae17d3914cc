package service

import (
	"context"

	"strata/internal/domain"
	"strata/internal/repository/postgres"
)

// CounterService provides business logic for named counters.
type CounterService struct {
	source   postgres.SessionSource
	eventBus *EventBus
	opts     Options
}

// NewCounterService creates a new counter service
func NewCounterService(source postgres.SessionSource, eventBus *EventBus, opts Options) *CounterService {
	return &CounterService{
		source:   source,
		eventBus: eventBus,
		opts:     normalizeOptions(opts),
	}
}

// Add creates a counter: its sequence and its catalog row.
func (s *CounterService) Add(ctx context.Context, name, description string, start, step int64) error {
	if err := s.opts.allowWrite(); err != nil {
		return err
	}

	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		return postgres.NewCounters(exec).Add(ctx, name, description, start, step)
	})
	if err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventCounterCreated,
		Subject: name,
		Payload: map[string]any{"name": name, "start": start, "step": step},
	})
	return nil
}

// Increment advances a counter and returns the new value.
func (s *CounterService) Increment(ctx context.Context, name string) (int64, error) {
	if err := s.opts.allowWrite(); err != nil {
		return 0, err
	}

	var value int64
	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		var err error
		value, err = postgres.NewCounters(exec).Increment(ctx, name)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.eventBus.Publish(Event{
		Type:    EventCounterIncremented,
		Subject: name,
		Payload: map[string]any{"name": name, "value": value},
	})
	return value, nil
}

// Value reads a counter's last produced value without advancing it.
func (s *CounterService) Value(ctx context.Context, name string) (int64, error) {
	var value int64
	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		var err error
		value, err = postgres.NewCounters(exec).Value(ctx, name)
		return err
	})
	return value, err
}

// Delete removes a counter's sequence and catalog row. Deleting an
// absent counter removes nothing and is not an error.
func (s *CounterService) Delete(ctx context.Context, name string) (int64, error) {
	if err := s.opts.allowWrite(); err != nil {
		return 0, err
	}

	var removed int64
	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		var err error
		removed, err = postgres.NewCounters(exec).Delete(ctx, name)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.eventBus.Publish(Event{
		Type:    EventCounterDeleted,
		Subject: name,
		Payload: map[string]any{"name": name, "removed": removed},
	})
	return removed, nil
}

// List returns every cataloged counter with its current value.
func (s *CounterService) List(ctx context.Context) ([]domain.Counter, error) {
	var counters []domain.Counter
	err := withExecutor(ctx, s.source, s.opts, func(exec *postgres.Executor) error {
		var err error
		counters, err = postgres.NewCounters(exec).List(ctx)
		return err
	})
	return counters, err
}
