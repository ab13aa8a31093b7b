// Package diagnostics captures post-mortem state when a generation panics.
//
// CrashDumpWriter doubles as a workflow observer so each dump names the
// content type, scene and agent that were in flight, alongside a host
// snapshot and an optional redacted environment.
package diagnostics
