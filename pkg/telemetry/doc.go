// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for buildwave.
//
// Logging is built on zerolog with component child loggers and run/package
// scoped fields. Metrics cover build outcomes, retries, wave durations, and
// in-flight workers; a disabled Metrics instance is a safe no-op. Tracing
// exports run, wave, and per-build spans through stdout or OTLP gRPC.
package telemetry
