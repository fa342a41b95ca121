// Package store defines interfaces for persistence dependencies (canonical
// entities, the notification ledger and task run history). Implementations
// live in the storage packages; this package must not import database drivers
// or concrete clients.
package store
