package core

import "time"

// Event names published on a run namespace.
const (
	EventUpdate                = "update"
	EventToolStart             = "tool:start"
	EventToolSuccess           = "tool:success"
	EventToolError             = "tool:error"
	EventInterventionRequested = "intervention_requested"
	EventInterventionCompleted = "intervention_completed"
)

// ToolEvent is the payload of the tool:* events.
type ToolEvent struct {
	RunID    string        `json:"run_id"`
	Call     ToolCallSpec  `json:"call"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Code     string        `json:"code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// UpdateEvent is the payload of the update event. Final is set once, on the
// terminal update of a run.
type UpdateEvent struct {
	RunID     string   `json:"run_id"`
	State     RunState `json:"state"`
	Iteration int      `json:"iteration"`
	// Remaining is the number of iterations that may still begin, -1 when
	// the run is unbounded.
	Remaining int       `json:"remaining"`
	Plan      *Plan     `json:"plan,omitempty"`
	Lookback  string    `json:"lookback,omitempty"`
	Final     bool      `json:"final,omitempty"`
	Answer    string    `json:"answer,omitempty"`
	Error     *RunError `json:"error,omitempty"`
}
