package storage

import (
	"context"

	"github.com/slok/ralph/internal/model"
)

// StateRepository persists the run state. GetState returns model.ErrNotFound when
// there is no enabled run.
type StateRepository interface {
	GetState(ctx context.Context) (*model.RunState, error)
	SaveState(ctx context.Context, s model.RunState) error
	DeleteState(ctx context.Context) error
}

// CheckpointRepository persists the single live checkpoint. GetCheckpoint returns
// model.ErrNotFound when there is no live checkpoint. Clearing is idempotent.
type CheckpointRepository interface {
	GetCheckpoint(ctx context.Context) (*model.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, c model.Checkpoint) error
	ClearCheckpoint(ctx context.Context) error
}

// HistoryRepository is the append only audit log.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, e model.HistoryEntry) error
	ListHistory(ctx context.Context) ([]model.HistoryEntry, error)
}

// TaskRepository persists the batch task list.
type TaskRepository interface {
	SaveTasks(ctx context.Context, tasks []model.Task) error
	ListTasks(ctx context.Context) ([]model.Task, error)
	DeleteTasks(ctx context.Context) error
}

// OutputRepository keeps the combined output of the last agent invocation.
type OutputRepository interface {
	SaveOutput(ctx context.Context, output string) error
	GetOutput(ctx context.Context) (string, error)
}

// MemoryRepository is the memory bank shared across iterations.
type MemoryRepository interface {
	AddMemory(ctx context.Context, m model.Memory) error
	ListMemories(ctx context.Context, q model.MemoryQuery) ([]model.Memory, error)
	ResetMemories(ctx context.Context) error
}

// RunRepository groups the repositories of a project run directory.
type RunRepository interface {
	StateRepository
	CheckpointRepository
	HistoryRepository
	TaskRepository
	OutputRepository
}
