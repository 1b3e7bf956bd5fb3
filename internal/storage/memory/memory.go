package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of the run and memory bank repositories.
type Repository struct {
	state      *model.RunState
	checkpoint *model.Checkpoint
	history    []model.HistoryEntry
	tasks      []model.Task
	output     string
	memories   []model.Memory
	mu         sync.RWMutex
	logger     log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		logger: cfg.Logger,
	}, nil
}

// GetState returns the current run state.
func (r *Repository) GetState(ctx context.Context) (*model.RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state == nil {
		return nil, fmt.Errorf("run state: %w", model.ErrNotFound)
	}

	// Return a copy
	stateCopy := *r.state
	return &stateCopy, nil
}

// SaveState replaces the run state.
func (r *Repository) SaveState(ctx context.Context, s model.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = &s
	r.logger.Debugf("Saved run state at iteration %d", s.Iteration)
	return nil
}

// DeleteState removes the run state.
func (r *Repository) DeleteState(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = nil
	return nil
}

// GetCheckpoint returns the live checkpoint.
func (r *Repository) GetCheckpoint(ctx context.Context) (*model.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.checkpoint == nil {
		return nil, fmt.Errorf("checkpoint: %w", model.ErrNotFound)
	}

	cpCopy := *r.checkpoint
	return &cpCopy, nil
}

// SaveCheckpoint replaces the live checkpoint.
func (r *Repository) SaveCheckpoint(ctx context.Context, c model.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkpoint = &c
	return nil
}

// ClearCheckpoint removes the live checkpoint.
func (r *Repository) ClearCheckpoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkpoint = nil
	return nil
}

// AppendHistory appends an entry to the audit log.
func (r *Repository) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, e)
	return nil
}

// ListHistory returns the audit log in append order.
func (r *Repository) ListHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]model.HistoryEntry, len(r.history))
	copy(entries, r.history)
	return entries, nil
}

// SaveTasks replaces the batch task list.
func (r *Repository) SaveTasks(ctx context.Context, tasks []model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = make([]model.Task, len(tasks))
	copy(r.tasks, tasks)
	return nil
}

// ListTasks returns the batch task list.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.tasks == nil {
		return nil, fmt.Errorf("tasks: %w", model.ErrNotFound)
	}

	tasks := make([]model.Task, len(r.tasks))
	copy(tasks, r.tasks)
	return tasks, nil
}

// DeleteTasks removes the batch task list.
func (r *Repository) DeleteTasks(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = nil
	return nil
}

// SaveOutput replaces the last agent output.
func (r *Repository) SaveOutput(ctx context.Context, output string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.output = output
	return nil
}

// GetOutput returns the last agent output.
func (r *Repository) GetOutput(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.output, nil
}

// AddMemory adds a memory bank entry.
func (r *Repository) AddMemory(ctx context.Context, m model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.memories {
		if existing.ID == m.ID {
			return fmt.Errorf("memory %s: %w", m.ID, model.ErrAlreadyExists)
		}
	}

	r.memories = append(r.memories, m)
	return nil
}

// ListMemories returns the newest memories first.
func (r *Repository) ListMemories(ctx context.Context, q model.MemoryQuery) ([]model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Memory
	for i := len(r.memories) - 1; i >= 0; i-- {
		m := r.memories[i]
		if q.RunID != "" && m.RunID != q.RunID {
			continue
		}
		if q.Kind != "" && m.Kind != q.Kind {
			continue
		}
		res = append(res, m)
		if q.Limit > 0 && len(res) >= q.Limit {
			break
		}
	}

	return res, nil
}

// ResetMemories removes every memory bank entry.
func (r *Repository) ResetMemories(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.memories = nil
	return nil
}
