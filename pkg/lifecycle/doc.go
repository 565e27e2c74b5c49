// Package lifecycle tracks resource state for the appdock engine.
//
// The Machine accepts driver-reported transitions over a closed state set
// (NotStarted, Starting, Running, Exited, FailedToStart, Unhealthy, Stopping,
// Stopped), drops reports with regressing timestamps, keeps the full ordered
// history per resource, and holds endpoint allocations bound exactly once per
// process lifetime.
//
// Accepted transitions fan out to any number of independent watchers. Every
// watcher first receives the current snapshot, so waiting for a state that
// was already reached resolves immediately. Per-resource ordering follows
// acceptance order; slow watchers lose their oldest queued snapshots rather
// than blocking the machine. WaitForState additionally treats any terminal
// state as satisfying a wait whose target set contains a terminal state,
// which keeps waiters from hanging on resources that fail fast.
package lifecycle
