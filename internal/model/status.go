package model

// RunStatus is the status of a project run.
type RunStatus struct {
	// State is nil when there is no active run.
	State      *RunState
	Goal       Goal
	Checkpoint *Checkpoint
	// HistoryCount is the number of audit log entries of the active run.
	HistoryCount    int
	LastEntry       *HistoryEntry
	LastOutputBytes int64
}

// Active returns true when there is an enabled run.
func (s RunStatus) Active() bool { return s.State != nil }
