package preflight

import (
	"context"

	"autocron/internal/config"
	"autocron/internal/procctl"
	"autocron/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to the given deployment. A nil
// store limits the run to filesystem checks, which lets the status command
// still report something when the database cannot be opened.
func RunAll(ctx context.Context, cfg *config.Config, st *store.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.DataDir),
		CheckDirectoryAccess("Log directory", cfg.LogDir),
	}

	if st != nil {
		results = append(results,
			CheckDatabaseAccess(ctx, st),
			CheckMonitorProcess(ctx, st, procctl.Alive),
		)
	}

	return results
}
