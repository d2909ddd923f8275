// Package main hosts the autocron admin CLI entrypoint and command graph.
//
// The Cobra-based command tree inspects and maintains the shared task store:
// status and preflight checks, the settings row, task and result listings,
// and database recreation. It centralizes configuration resolution and store
// access so subcommands can focus on presentation.
//
// The CLI is read-mostly. Execution belongs to hosts embedding the engine;
// the only mutations offered here are the operator escape hatches
// (settings, recreate) that cannot live inside a host process.
package main
