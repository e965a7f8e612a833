// Package runner is the entry point for executing runs.
//
// A Runner owns the shared event bus, the intervention registry and the
// coordinator that serializes human prompts across every concurrent run.
// Each run is scoped to the namespace ["run", runID]; observers subscribe on
// the run's Handle or at the bus root to see all runs.
//
// # Responsibilities
//   - Run lifecycle: synchronous Run, asynchronous Start, Cancel by id
//   - Admission: a bounded number of concurrent runs, one run per session
//   - Session continuity: loading and saving conversation memory
//   - Coordinator lifecycle (Start/Close)
package runner
