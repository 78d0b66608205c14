// Package server assembles the processor's HTTP surface behind one
// multiplexer: job queries, the health probe, and the metrics exposition.
//
// A consistent middleware chain of request ids, metrics, and logging wraps
// every route so handlers share common instrumentation without repeating it.
package server
