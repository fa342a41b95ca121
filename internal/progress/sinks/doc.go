// Package sinks implements progress consumers: structured logging,
// Prometheus source health gauges and an in-memory source health table for
// the ops API.
package sinks
