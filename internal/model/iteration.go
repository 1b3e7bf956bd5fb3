package model

import "time"

// IterationOutcome is the result class of a single iteration.
type IterationOutcome string

const (
	IterationOutcomeSuccess           IterationOutcome = "success"
	IterationOutcomeFailure           IterationOutcome = "failure"
	IterationOutcomeCompletionClaimed IterationOutcome = "completion_claimed"
)

// FailureKind classifies a failed iteration.
type FailureKind string

const (
	FailureKindNoChange         FailureKind = "no_change"
	FailureKindAgentError       FailureKind = "agent_error"
	FailureKindTimeout          FailureKind = "timeout"
	FailureKindNetworkTimeout   FailureKind = "network_timeout"
	FailureKindNetworkTransient FailureKind = "network_transient"
	FailureKindModelUnavailable FailureKind = "model_unavailable"
)

// IterationResult is what the iteration executor reports back to the loop.
type IterationResult struct {
	Outcome     IterationOutcome
	FailureKind FailureKind
	Output      string
	ExitCode    int
	Changed     bool
	Model       string
	Duration    time.Duration
}

// Failed returns true when the iteration counts as a failure.
func (r IterationResult) Failed() bool { return r.Outcome == IterationOutcomeFailure }

// ReviewVerdict is the outcome of the acceptance pipeline on a completion claim.
type ReviewVerdict struct {
	Approved bool
	Gate     string
	Issues   []string
}

// Approved returns an approving verdict.
func Approved() ReviewVerdict { return ReviewVerdict{Approved: true} }

// Rejected returns a rejecting verdict for a gate.
func Rejected(gate string, issues ...string) ReviewVerdict {
	return ReviewVerdict{Approved: false, Gate: gate, Issues: issues}
}

// LoopPhase is the phase of the loop controller state machine.
type LoopPhase string

const (
	LoopPhaseIdle              LoopPhase = "idle"
	LoopPhaseRunning           LoopPhase = "running"
	LoopPhaseWaitingForNetwork LoopPhase = "waiting_for_network"
	LoopPhaseVerifying         LoopPhase = "verifying"
	LoopPhaseHalted            LoopPhase = "halted"
	LoopPhaseCompleted         LoopPhase = "completed"
)

// HaltReason is why a loop stopped without completing.
type HaltReason string

const (
	HaltReasonLimitReached       HaltReason = "iteration_limit_reached"
	HaltReasonMaxFailuresReached HaltReason = "max_consecutive_failures"
	HaltReasonNetworkTimeout     HaltReason = "network_timeout"
	HaltReasonPreflightFailed    HaltReason = "preflight_failed"
	HaltReasonTasksSkipped       HaltReason = "tasks_skipped"
	HaltReasonInterrupted        HaltReason = "interrupted"
)

// LoopReport summarizes a finished loop execution.
type LoopReport struct {
	Phase      LoopPhase
	HaltReason HaltReason
	Iterations int
	Iteration  int
}
