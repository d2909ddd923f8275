package store

import "errors"

// ErrInvalidSetting marks rejected settings mutations: unknown keys, values
// that fail per-key validation, and attempts to write the monitor-owned
// mirror columns. Callers classify with errors.Is.
var ErrInvalidSetting = errors.New("invalid setting")

// ErrMaintenanceLocked indicates another process is already recreating the
// database file.
var ErrMaintenanceLocked = errors.New("store maintenance already in progress")
