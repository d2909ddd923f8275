// Package monitor implements the supervising child process. It spawns the
// worker pool, respawns workers that die, watches the host pid so an
// unclean host exit still drains everything, and runs the periodic
// housekeeping (result expiry, stale claim recovery) that keeps the store
// healthy. Exactly one monitor runs per database; the monitor_lock setting
// decides which starting host spawns it.
package monitor
