// Package metrics registers the storage engine's Prometheus metrics at
// package init and exposes them via Handler() for an HTTP /metrics
// endpoint, following the same MustRegister-at-init + Timer pattern used
// throughout the corpus for operational instrumentation.
package metrics
