// Package telemetry groups the observability subpackages: structured
// logging (log/slog), Prometheus metrics, and OpenTelemetry tracing.
package telemetry
