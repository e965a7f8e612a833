package core

// RunState is the state of the plan-execute-observe loop.
type RunState string

const (
	StatePlanning             RunState = "PLANNING"
	StateExecutingStep        RunState = "EXECUTING_STEP"
	StateAwaitingIntervention RunState = "AWAITING_INTERVENTION"
	StateObserving            RunState = "OBSERVING"
	StateDone                 RunState = "DONE"
	StateFailed               RunState = "FAILED"
)

// Terminal reports whether s is DONE or FAILED.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
