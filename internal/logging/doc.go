// Package logging assembles the structured slog loggers shared by the
// engine, the monitor and worker processes, and the admin CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and defines the standard field names so every process
// writing to the shared log file tags lines the same way. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
