// Package telemetry wires OpenTelemetry exporters and meters for the
// guardrail pipeline.
//
// It centralises trace provider setup, applies pipeline-specific resource
// attributes, and offers enrichment helpers that attach guard decisions and
// security metadata to spans so operators can correlate enforcement with
// upstream behaviour. A Prometheus registry mirrors the counters the admin
// endpoint scrapes.
package telemetry
