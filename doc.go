// Package autocron delegates background tasks to worker processes that
// coordinate through an embedded SQLite store. The host application
// registers task functions, starts the engine, and enqueues work; a
// monitor process supervises the workers, and results flow back through
// the same store. No broker, no network listener, no second service to
// operate.
//
// The host binary is re-executed to obtain the monitor and worker
// processes, so registration must happen before Bootstrap:
//
//	eng, err := autocron.New(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	eng.Register("report.Build", buildFn)
//	if eng.Bootstrap() {
//		return // this process ran as a monitor or worker
//	}
//	if err := eng.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	handle, err := eng.EnqueueDelayed("report.Build", 2026, "Q3")
//	err = eng.EnqueueCron("report.Nightly", "30 2 * * *")
//	res, err := eng.Result(handle)
//
// Arguments and return values cross process boundaries as JSON, so task
// functions observe JSON types: numbers arrive as float64, arrays as
// []any, objects as map[string]any.
package autocron
