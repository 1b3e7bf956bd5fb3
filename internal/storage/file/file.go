package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	fileutil "github.com/slok/ralph/internal/utils/file"
)

// RepositoryConfig is the configuration for the file repository.
type RepositoryConfig struct {
	// Root is the project root, files are stored under its ralph directory.
	Root   string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.File"})
	return nil
}

// Repository stores the run files as human inspectable JSON documents. Whole file
// documents are replaced atomically and the history is an append only JSON lines file.
type Repository struct {
	root   string
	mu     sync.Mutex
	logger log.Logger
}

// NewRepository creates a new file repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		root:   cfg.Root,
		logger: cfg.Logger,
	}, nil
}

func (r *Repository) path(filename string) string {
	return conventions.RunFilePath(r.root, filename)
}

// GetState returns the current run state.
func (r *Repository) GetState(ctx context.Context) (*model.RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s runStateJSON
	if err := r.readJSON(conventions.StateFile, &s); err != nil {
		return nil, fmt.Errorf("run state: %w", err)
	}

	state := s.toModel()
	return &state, nil
}

// SaveState replaces the run state.
func (r *Repository) SaveState(ctx context.Context, s model.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeJSON(conventions.StateFile, runStateFromModel(s)); err != nil {
		return fmt.Errorf("could not save run state: %w", err)
	}

	r.logger.Debugf("Saved run state at iteration %d", s.Iteration)
	return nil
}

// DeleteState removes the run state.
func (r *Repository) DeleteState(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fileutil.RemoveIfExists(r.path(conventions.StateFile)); err != nil {
		return fmt.Errorf("could not delete run state: %w", err)
	}
	return nil
}

// GetCheckpoint returns the live checkpoint.
func (r *Repository) GetCheckpoint(ctx context.Context) (*model.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var c checkpointJSON
	if err := r.readJSON(conventions.CheckpointFile, &c); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	cp := c.toModel()
	return &cp, nil
}

// SaveCheckpoint replaces the live checkpoint.
func (r *Repository) SaveCheckpoint(ctx context.Context, c model.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeJSON(conventions.CheckpointFile, checkpointFromModel(c)); err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	r.logger.Debugf("Checkpoint %s at iteration %d", c.Status, c.Iteration)
	return nil
}

// ClearCheckpoint removes the live checkpoint.
func (r *Repository) ClearCheckpoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fileutil.RemoveIfExists(r.path(conventions.CheckpointFile)); err != nil {
		return fmt.Errorf("could not clear checkpoint: %w", err)
	}
	return nil
}

// AppendHistory appends an entry to the audit log.
func (r *Repository) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(historyEntryFromModel(e))
	if err != nil {
		return fmt.Errorf("could not marshal history entry: %w", err)
	}

	if err := fileutil.AppendLine(r.path(conventions.HistoryFile), data); err != nil {
		return fmt.Errorf("could not append history entry: %w", err)
	}

	return nil
}

// ListHistory returns the audit log in append order. Lines that can't be decoded
// (e.g. a torn write after a crash) are skipped.
func (r *Repository) ListHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path(conventions.HistoryFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("could not read history: %w", err)
	}

	entries := []model.HistoryEntry{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e historyEntryJSON
		if err := json.Unmarshal(line, &e); err != nil {
			r.logger.Warningf("Skipping malformed history line: %s", err)
			continue
		}
		entries = append(entries, e.toModel())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not scan history: %w", err)
	}

	return entries, nil
}

// SaveTasks replaces the batch task list.
func (r *Repository) SaveTasks(ctx context.Context, tasks []model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		ts = append(ts, taskFromModel(t))
	}

	if err := r.writeJSON(conventions.TasksFile, ts); err != nil {
		return fmt.Errorf("could not save tasks: %w", err)
	}
	return nil
}

// ListTasks returns the batch task list.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ts []taskJSON
	if err := r.readJSON(conventions.TasksFile, &ts); err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(ts))
	for _, t := range ts {
		tasks = append(tasks, t.toModel())
	}
	return tasks, nil
}

// DeleteTasks removes the batch task list.
func (r *Repository) DeleteTasks(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fileutil.RemoveIfExists(r.path(conventions.TasksFile)); err != nil {
		return fmt.Errorf("could not delete tasks: %w", err)
	}
	return nil
}

// SaveOutput replaces the last agent output.
func (r *Repository) SaveOutput(ctx context.Context, output string) error {
	if err := fileutil.WriteAtomic(r.path(conventions.OutputFile), []byte(output), 0o644); err != nil {
		return fmt.Errorf("could not save output: %w", err)
	}
	return nil
}

// GetOutput returns the last agent output, empty when there is none.
func (r *Repository) GetOutput(ctx context.Context) (string, error) {
	data, err := os.ReadFile(r.path(conventions.OutputFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("could not read output: %w", err)
	}
	return string(data), nil
}

func (r *Repository) readJSON(filename string, v any) error {
	data, err := os.ReadFile(r.path(filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.ErrNotFound
		}
		return fmt.Errorf("could not read %s: %w", filename, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not decode %s: %w", filename, err)
	}
	return nil
}

func (r *Repository) writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", filename, err)
	}
	data = append(data, '\n')

	return fileutil.WriteAtomic(r.path(filename), data, 0o644)
}

type runStateJSON struct {
	RunID               string    `json:"run_id"`
	Iteration           int       `json:"iteration"`
	MaxIterations       int       `json:"max_iterations"`
	CompletionPromise   string    `json:"completion_promise,omitempty"`
	Mode                string    `json:"mode"`
	Prompt              string    `json:"prompt,omitempty"`
	CurrentTaskIndex    int       `json:"current_task_index,omitempty"`
	TasksTotal          int       `json:"tasks_total,omitempty"`
	CurrentTaskID       string    `json:"current_task_id,omitempty"`
	TasksSkipped        int       `json:"tasks_skipped,omitempty"`
	Model               string    `json:"model"`
	FallbackModel       string    `json:"fallback_model,omitempty"`
	AutoSubagents       bool      `json:"auto_subagents"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	RejectionFeedback   string    `json:"rejection_feedback,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func runStateFromModel(s model.RunState) runStateJSON {
	return runStateJSON{
		RunID:               s.RunID,
		Iteration:           s.Iteration,
		MaxIterations:       s.MaxIterations,
		CompletionPromise:   s.CompletionPromise,
		Mode:                string(s.Mode),
		Prompt:              s.Prompt,
		CurrentTaskIndex:    s.CurrentTaskIndex,
		TasksTotal:          s.TasksTotal,
		CurrentTaskID:       s.CurrentTaskID,
		TasksSkipped:        s.TasksSkipped,
		Model:               s.Model,
		FallbackModel:       s.FallbackModel,
		AutoSubagents:       s.AutoSubagents,
		ConsecutiveFailures: s.ConsecutiveFailures,
		RejectionFeedback:   s.RejectionFeedback,
		StartedAt:           s.StartedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
}

func (s runStateJSON) toModel() model.RunState {
	return model.RunState{
		RunID:               s.RunID,
		Iteration:           s.Iteration,
		MaxIterations:       s.MaxIterations,
		CompletionPromise:   s.CompletionPromise,
		Mode:                model.RunMode(s.Mode),
		Prompt:              s.Prompt,
		CurrentTaskIndex:    s.CurrentTaskIndex,
		TasksTotal:          s.TasksTotal,
		CurrentTaskID:       s.CurrentTaskID,
		TasksSkipped:        s.TasksSkipped,
		Model:               s.Model,
		FallbackModel:       s.FallbackModel,
		AutoSubagents:       s.AutoSubagents,
		ConsecutiveFailures: s.ConsecutiveFailures,
		RejectionFeedback:   s.RejectionFeedback,
		StartedAt:           s.StartedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

type checkpointJSON struct {
	Status     string    `json:"status"`
	Iteration  int       `json:"iteration"`
	TaskID     string    `json:"task_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	PID        int       `json:"pid"`
	OutputTail string    `json:"output_tail,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

func checkpointFromModel(c model.Checkpoint) checkpointJSON {
	return checkpointJSON{
		Status:     string(c.Status),
		Iteration:  c.Iteration,
		TaskID:     c.TaskID,
		Timestamp:  c.Timestamp.UTC(),
		PID:        c.PID,
		OutputTail: c.OutputTail,
		Detail:     c.Detail,
	}
}

func (c checkpointJSON) toModel() model.Checkpoint {
	return model.Checkpoint{
		Status:     model.CheckpointStatus(c.Status),
		Iteration:  c.Iteration,
		TaskID:     c.TaskID,
		Timestamp:  c.Timestamp,
		PID:        c.PID,
		OutputTail: c.OutputTail,
		Detail:     c.Detail,
	}
}

type historyEntryJSON struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Iteration int       `json:"iteration"`
	TaskID    string    `json:"task_id,omitempty"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func historyEntryFromModel(e model.HistoryEntry) historyEntryJSON {
	return historyEntryJSON{
		ID:        e.ID,
		RunID:     e.RunID,
		Iteration: e.Iteration,
		TaskID:    e.TaskID,
		Status:    string(e.Outcome),
		Notes:     e.Notes,
		Timestamp: e.Timestamp.UTC(),
	}
}

func (e historyEntryJSON) toModel() model.HistoryEntry {
	return model.HistoryEntry{
		ID:        e.ID,
		RunID:     e.RunID,
		Iteration: e.Iteration,
		TaskID:    e.TaskID,
		Outcome:   model.HistoryOutcome(e.Status),
		Notes:     e.Notes,
		Timestamp: e.Timestamp,
	}
}

type taskJSON struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Prompt            string  `json:"prompt"`
	MaxIterations     *int    `json:"max_iterations,omitempty"`
	CompletionPromise *string `json:"completion_promise,omitempty"`
}

func taskFromModel(t model.Task) taskJSON {
	return taskJSON{
		ID:                t.ID,
		Title:             t.Title,
		Prompt:            t.Prompt,
		MaxIterations:     t.MaxIterations,
		CompletionPromise: t.CompletionPromise,
	}
}

func (t taskJSON) toModel() model.Task {
	return model.Task{
		ID:                t.ID,
		Title:             t.Title,
		Prompt:            t.Prompt,
		MaxIterations:     t.MaxIterations,
		CompletionPromise: t.CompletionPromise,
	}
}
