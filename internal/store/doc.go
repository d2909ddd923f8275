// Package store persists tasks, results, and the shared settings row in
// SQLite and exposes the coordination primitives every process relies on.
//
// The Store owns schema initialization, the atomic claim that hands due
// tasks to exactly one worker, the monitor-lock compare-and-set, result
// retention, and stuck-task recovery. The database file is the only channel
// between the host application, the monitor, and the workers; nothing else
// is shared.
//
// Timestamps are RFC 3339 UTC strings, mutations run through a bounded
// busy-retry, and the file is treated as expendable: a corrupt database is
// recreated with defaults rather than repaired. Schema changes bump the
// version in schema.go; users recreate the database to adopt a new layout.
package store
