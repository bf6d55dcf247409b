// Package telemetry wires gantry's observability: zerolog structured
// logging, Prometheus metrics for detections and capability calls, and
// OpenTelemetry tracing with OTLP or stdout export.
package telemetry
