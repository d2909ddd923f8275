package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies notable lifecycle events (task_claimed, worker_respawned, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step when an operation fails.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldTaskID is the standardized structured logging key for task row identifiers.
	FieldTaskID = "task_id"
	// FieldTarget is the standardized structured logging key for task target names.
	FieldTarget = "target"
	// FieldHandle is the standardized structured logging key for result handles.
	FieldHandle = "handle"
	// FieldPID is the standardized structured logging key for process identifiers.
	FieldPID = "pid"
)
