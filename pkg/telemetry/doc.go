// Package telemetry provides structured logging, tracing, and metrics for the
// appdock engine.
//
// Logging is built on zerolog with component child loggers and field helpers
// for the domain (resource, endpoint, image). Tracing uses OpenTelemetry with
// OTLP and stdout exporters; metrics use Prometheus with a private registry.
// All three are configured through a single Config and degrade to no-ops when
// disabled, so library code can record unconditionally.
package telemetry
