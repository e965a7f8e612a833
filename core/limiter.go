package core

import "fmt"

// IterationBudget bounds the plan iterations of a single run. It belongs to
// the run's loop and is not safe for concurrent use.
type IterationBudget struct {
	max  int
	used int
}

// NewIterationBudget returns a budget of max iterations. Zero or less means
// unbounded.
func NewIterationBudget(max int) IterationBudget {
	if max < 0 {
		max = 0
	}
	return IterationBudget{max: max}
}

// Begin starts the next iteration and returns its 1-based number. A spent
// budget fails without counting the attempt.
func (b *IterationBudget) Begin() (int, error) {
	if b.max > 0 && b.used >= b.max {
		return b.used, fmt.Errorf("all %d iterations used without a final answer", b.max)
	}
	b.used++
	return b.used, nil
}

// Used returns the number of iterations started so far.
func (b IterationBudget) Used() int { return b.used }

// Max returns the bound, 0 when unbounded.
func (b IterationBudget) Max() int { return b.max }

// Remaining returns how many iterations may still begin, or -1 when unbounded.
func (b IterationBudget) Remaining() int {
	if b.max == 0 {
		return -1
	}
	return b.max - b.used
}
