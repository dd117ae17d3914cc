package service

import (
	"context"

	"strata/internal/core/probe"
	"strata/internal/repository/postgres"
)

// AdminService provides database administration and the capability
// probe over a maintenance connection.
type AdminService struct {
	source   postgres.SessionSource
	connect  postgres.ConnectFunc
	eventBus *EventBus
	opts     Options
}

// NewAdminService creates a new admin service. connect dials a named
// database for post-create extension setup.
func NewAdminService(source postgres.SessionSource, connect postgres.ConnectFunc, eventBus *EventBus, opts Options) *AdminService {
	return &AdminService{
		source:   source,
		connect:  connect,
		eventBus: eventBus,
		opts:     normalizeOptions(opts),
	}
}

// CreateDatabase creates a database, optionally enabling PostGIS in it.
func (s *AdminService) CreateDatabase(ctx context.Context, name string, withPostGIS bool) error {
	if err := s.opts.allowWrite(); err != nil {
		return err
	}

	sess, err := s.source.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	if err := postgres.NewDatabases(sess, s.connect).Create(ctx, name, withPostGIS); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventDatabaseCreated,
		Subject: name,
		Payload: map[string]any{"name": name, "postgis": withPostGIS},
	})
	return nil
}

// DropDatabase drops a database.
func (s *AdminService) DropDatabase(ctx context.Context, name string) error {
	if err := s.opts.allowWrite(); err != nil {
		return err
	}

	sess, err := s.source.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	if err := postgres.NewDatabases(sess, s.connect).Drop(ctx, name); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventDatabaseDropped,
		Subject: name,
		Payload: map[string]any{"name": name},
	})
	return nil
}

// Probe gathers capability evidence from the connected database and
// synthesizes an operating-mode recommendation.
func (s *AdminService) Probe(ctx context.Context) (*probe.Result, error) {
	sess, err := s.source.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	result := probe.New(sess).Report(ctx)
	return &result, nil
}
