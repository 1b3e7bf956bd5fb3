package model

import "time"

// CheckpointStatus is the risky step a run was at when the checkpoint was written.
type CheckpointStatus string

const (
	CheckpointStatusIterationStarted    CheckpointStatus = "iteration_started"
	CheckpointStatusExecuting           CheckpointStatus = "executing"
	CheckpointStatusNetworkDisconnected CheckpointStatus = "network_disconnected"
	CheckpointStatusNetworkRestored     CheckpointStatus = "network_restored"
	CheckpointStatusNetworkError        CheckpointStatus = "network_error"
	CheckpointStatusNetworkTimeout      CheckpointStatus = "network_timeout"
	CheckpointStatusIterationFailed     CheckpointStatus = "iteration_failed"
	CheckpointStatusMaxFailuresReached  CheckpointStatus = "max_failures_reached"
)

// NeedsNetwork returns true when resuming from this status must wait for connectivity first.
func (s CheckpointStatus) NeedsNetwork() bool {
	switch s {
	case CheckpointStatusNetworkDisconnected, CheckpointStatusNetworkError, CheckpointStatusNetworkTimeout:
		return true
	}
	return false
}

// Checkpoint is the last risky step recorded by the loop. A live checkpoint means
// the previous process did not reach a clean iteration end.
type Checkpoint struct {
	Status     CheckpointStatus
	Iteration  int
	TaskID     string
	Timestamp  time.Time
	PID        int
	OutputTail string
	Detail     string
}
