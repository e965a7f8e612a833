package core

// StepStatus is the lifecycle status of a Step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// ToolCallSpec describes one tool invocation. The correlation id is assigned
// once per call and never reused.
type ToolCallSpec struct {
	Tool          string         `json:"tool"`
	Input         map[string]any `json:"input,omitempty"`
	CorrelationID string         `json:"correlation_id"`
}

// Step is one unit of a Plan.
type Step struct {
	Title  string       `json:"title"`
	Call   ToolCallSpec `json:"call"`
	Status StepStatus   `json:"status"`
	Result any          `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Plan is the ordered sequence of Steps the loop executes before its next
// observation. Revision starts at 1 and is incremented on every replan.
type Plan struct {
	Revision int    `json:"revision"`
	Steps    []Step `json:"steps"`
}

// Clone returns a deep enough copy for publishing as a snapshot. Step inputs
// are copied one level deep; results are shared.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}

	out := &Plan{Revision: p.Revision, Steps: make([]Step, len(p.Steps))}
	for i, s := range p.Steps {
		if s.Call.Input != nil {
			in := make(map[string]any, len(s.Call.Input))
			for k, v := range s.Call.Input {
				in[k] = v
			}
			s.Call.Input = in
		}
		out.Steps[i] = s
	}

	return out
}

// NextPending returns the index of the first pending step, or -1.
func (p *Plan) NextPending() int {
	if p == nil {
		return -1
	}
	for i, s := range p.Steps {
		if s.Status == StepPending {
			return i
		}
	}
	return -1
}

// Done reports whether no step is pending or running.
func (p *Plan) Done() bool {
	if p == nil {
		return true
	}
	for _, s := range p.Steps {
		if s.Status == StepPending || s.Status == StepRunning {
			return false
		}
	}
	return true
}

// Failed reports whether any step failed.
func (p *Plan) Failed() bool {
	if p == nil {
		return false
	}
	for _, s := range p.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}
