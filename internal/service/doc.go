// Package service implements business logic for the Strata store.
//
// This package provides service layers that coordinate between the HTTP
// handlers and the repository layer, implementing validation, operating
// mode enforcement, and event publishing.
//
// # Services
//
// LayerService manages declarative spatial layers and their records:
// applying layer definitions, record CRUD with geometry encoding, and
// codec/GeoPackage export.
//
// CounterService manages named sequence-backed counters.
//
// AdminService manages databases on the cluster and runs the
// capability probe.
//
// # Event System
//
// All services publish events via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE). Event types include
// record/layer changes, counter changes, and database administration.
//
// # Design Principles
//
// - Services own business logic and validation
// - One pooled session per store call
// - Event-driven for real-time updates
// - Context-aware for cancellation and timeouts
package service
