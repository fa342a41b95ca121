// Package progress carries run and source lifecycle events from the task
// bodies to pluggable sinks. Emit never blocks; a background goroutine
// batches events and hands them to each sink.
package progress
