// Package prometheus exports authshield engine counters as a
// [github.com/prometheus/client_golang/prometheus.Collector].
//
// Counters are named authshield_*_total; login latency is the
// authshield_login_latency_seconds histogram. [Exporter.Handler] serves a
// private registry so nothing is registered globally.
package prometheus
