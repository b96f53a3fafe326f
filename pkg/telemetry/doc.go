// Package telemetry bundles the observability stack: zerolog-based
// structured logging, OpenTelemetry tracing and Prometheus metrics for
// allocation, resolution and workflow runs. A single Telemetry value is
// created at startup and threaded through the context.
package telemetry
