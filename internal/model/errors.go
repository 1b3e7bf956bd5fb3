package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrNoActiveRun is returned when an operation needs an enabled run and there is none.
	ErrNoActiveRun = errors.New("no active run")
	// ErrRunActive is returned when a run is enabled while another one is active.
	ErrRunActive = errors.New("run already active")
	// ErrHalted is returned when the loop stops without completing the run.
	ErrHalted = errors.New("run halted")
	// ErrPreflight is returned when the agent preflight ping fails.
	ErrPreflight = errors.New("agent preflight failed")
)

// HaltError describes why the loop halted and what the user can do next.
type HaltError struct {
	Reason   HaltReason
	NextStep string
}

func (e *HaltError) Error() string {
	if e.NextStep == "" {
		return fmt.Sprintf("%s: %s", ErrHalted, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrHalted, e.Reason, e.NextStep)
}

func (e *HaltError) Unwrap() error { return ErrHalted }
