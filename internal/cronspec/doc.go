// Package cronspec parses crontab schedule expressions and evaluates
// due-ness against wall-clock minutes.
//
// A schedule is the classic five-field form (minute, hour, day-of-month,
// month, day-of-week) with *, single values, comma lists, ranges, and step
// values; day-of-week runs 0-6 with 0 meaning Sunday. Specs are validated at
// registration time so a malformed schedule never reaches a worker, and the
// canonical string form is what the store persists.
//
// Next-occurrence computation always starts from a supplied instant, so a
// host resuming after downtime fires exactly one catch-up run and then
// realigns with the schedule.
package cronspec
