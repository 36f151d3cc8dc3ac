package simbot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates the plant state diverged to NaN or Inf.
	ErrInvalidState = errors.New("simbot: invalid state (NaN or Inf detected)")

	// ErrInvalidParams indicates a plant parameter outside its valid range.
	ErrInvalidParams = errors.New("simbot: invalid plant parameters")

	// ErrInjectedFault is returned by reads failed through Faults.
	ErrInjectedFault = errors.New("simbot: injected read fault")
)

// StepError wraps an integration failure with the step it happened on.
type StepError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
