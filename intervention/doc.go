// Package intervention implements the human-in-the-loop protocol.
//
// A tool that needs human input registers a correlation id, emits an
// intervention_requested event on its namespace and blocks on the matching
// future. The Coordinator, subscribed at the root namespace, serializes all
// requests through a single Gateway, emits intervention_completed with the
// same correlation id on the requesting namespace and then resolves the
// future, which resumes the suspended tool call.
//
// Cancelling the context of a request removes it from the queue (or aborts
// its in-flight prompt) without emitting a completion.
package intervention
