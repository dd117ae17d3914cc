// Package handler implements HTTP request handlers for the Strata API.
//
// This package provides the HTTP layer for the Strata REST API, handling
// requests for layer and record operations, named counters, and database
// administration.
//
// # Handlers
//
// LayerHandler handles layer registry operations and record CRUD,
// queries, and export downloads.
//
// CounterHandler manages sequence-backed named counters.
//
// AdminHandler creates and drops databases and exposes the capability
// probe report.
//
// WorkerHandler lists background workers and triggers runs on demand.
//
// Middleware provides request logging, panic recovery, CORS support,
// and API key authorization.
//
// # API Design
//
// All handlers follow REST conventions:
// - GET for retrieval
// - POST for creation
// - PUT for updates
// - DELETE for removal
//
// Errors are returned as JSON with appropriate HTTP status codes.
// Request bodies are validated before processing.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes (200, 201).
// Error responses return JSON with {error, details} structure. Requests
// rejected by the authorizer return {ok, message, data} instead.
//
// # Server-Sent Events
//
// The /api/events endpoint provides real-time store updates via SSE,
// allowing clients to receive live notifications of record and layer
// changes.
package handler
