// Package otel publishes authshield engine counters through an
// OpenTelemetry [go.opentelemetry.io/otel/metric.Meter] supplied by the
// caller.
//
// Each counter becomes an Int64ObservableCounter. The login latency
// histogram is published as one cumulative gauge per bucket plus a count
// gauge.
package otel
