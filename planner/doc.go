// Package planner provides implementations of core.Planner, the external
// collaborator that turns the conversation and the last observation into the
// next plan.
//
// ModelPlanner asks a language model for a JSON plan, validates it against a
// JSON schema and retries with exponential backoff. Scripted and Func are
// deterministic planners for tests and examples.
package planner
