// Package api hosts the HTTP handlers fronting the VOD processor's read-only
// query surface.
//
// Handlers expose snapshots of the in-memory job registry and a component
// health probe; they never mutate jobs, which belong to the processing
// pipeline. Dependencies are injected at construction time so endpoint
// behaviour stays testable without real Redis or encoder processes.
//
// Handler implementations assume upstream middleware from internal/server has
// already applied request ids, logging, and metrics. New routes should lean on
// those guarantees instead of duplicating them.
package api
