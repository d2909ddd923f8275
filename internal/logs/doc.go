// Package logs reads the shared log file that every autocron process appends
// to. The admin CLI uses it for `autocron logs`, showing recent activity
// without touching the store or any live process.
//
// Tail reads the last N lines with bounded memory; ReadFrom resumes at a
// byte offset, which is how follow mode picks up appended lines between
// polls.
package logs
