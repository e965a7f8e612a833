// Package core provides the foundational domain types and contracts shared by
// the agent runtime. It defines:
//
//   - Plans, Steps and ToolCallSpecs (the unit of work of the control loop)
//   - Intervention requests and responses (human-input checkpoints)
//   - Event names and payloads published on the emitter
//   - ToolContext (the scoped execution surface handed to tools)
//   - The Planner contract of the external plan-generation collaborator
//   - RunError, the structured failure report of a run
//
// Implementation concerns (event dispatch, tool invocation, the loop itself)
// live in sibling packages; core only holds the small shared vocabulary.
package core
