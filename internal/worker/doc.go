// Package worker implements the task-executing child process. A worker
// claims due tasks from the shared store, runs them strictly in order, and
// writes results back; it never talks to the monitor or the host directly.
// An idle worker watches its supervisor pid and exits when the monitor is
// gone, so a crashed monitor cannot leave orphans behind.
package worker
