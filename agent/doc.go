// Package agent implements the plan-execute-observe loop.
//
// A ReplanAgent asks a core.Planner for a plan, executes its steps one at a
// time through a tool.Invoker, observes the outcome and replans until the
// planner reports the task complete. Each run is an Execution: an explicit
// state machine (PLANNING, EXECUTING_STEP, AWAITING_INTERVENTION, OBSERVING,
// DONE, FAILED) that only advances between suspension points. Tool calls and
// the intervention round-trips they trigger are the only suspension points.
//
// Progress is published on the run namespace:
//
//   - update after every step, after every replan and once at termination
//   - tool:start, tool:success and tool:error for every call
//   - intervention_requested / intervention_completed raised by tools
//
// A failed step ends the current plan early and forces an observation.
// Step failures never fail the run by themselves.
package agent
