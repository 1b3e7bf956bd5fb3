package model

import "time"

// HistoryOutcome is the recorded outcome of an audit log entry.
type HistoryOutcome string

const (
	HistoryOutcomeEnabled        HistoryOutcome = "enabled"
	HistoryOutcomeSuccess        HistoryOutcome = "success"
	HistoryOutcomeFailure        HistoryOutcome = "failure"
	HistoryOutcomeRejected       HistoryOutcome = "rejected"
	HistoryOutcomeCompleted      HistoryOutcome = "completed"
	HistoryOutcomeTaskCompleted  HistoryOutcome = "task_completed"
	HistoryOutcomeTaskMaxReached HistoryOutcome = "task_max_reached"
	HistoryOutcomeTaskSkipped    HistoryOutcome = "task_skipped"
	HistoryOutcomeHalted         HistoryOutcome = "halted"
	HistoryOutcomeDisabled       HistoryOutcome = "disabled"
)

// HistoryEntry is an immutable audit log record.
type HistoryEntry struct {
	ID        string
	RunID     string
	Iteration int
	TaskID    string
	Outcome   HistoryOutcome
	Notes     string
	Timestamp time.Time
}
