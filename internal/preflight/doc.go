// Package preflight provides readiness checks for the directories and the
// database an autocron deployment depends on.
//
// The CLI "autocron status" command runs the full set to display health;
// individual checks (CheckDirectoryAccess, CheckMonitorProcess) also serve
// as building blocks for operator tooling. Checks never repair anything,
// they only report.
package preflight
