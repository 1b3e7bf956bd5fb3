package model

import (
	"fmt"
	"time"
)

// RunMode is the way a run iterates over its work.
type RunMode string

const (
	// RunModeSingle iterates a single task until completion.
	RunModeSingle RunMode = "single"
	// RunModeBatch iterates an ordered list of tasks, one after the other.
	RunModeBatch RunMode = "batch"
)

const (
	// DefaultModel is the agent model used when none is requested.
	DefaultModel = "gpt-5.2-codex"
	// DefaultFallbackModel is used when the main model is unavailable.
	DefaultFallbackModel = "auto"
	// DefaultBatchMaxIterations is the per task iteration limit for batch runs.
	DefaultBatchMaxIterations = 20
)

// RunState is the persisted state of an enabled run.
type RunState struct {
	RunID             string
	Iteration         int
	MaxIterations     int // 0 means unbounded.
	CompletionPromise string
	Mode              RunMode
	Prompt            string

	// Batch only.
	CurrentTaskIndex int
	TasksTotal       int
	CurrentTaskID    string
	TasksSkipped     int

	Model         string
	FallbackModel string
	AutoSubagents bool

	ConsecutiveFailures int
	// RejectionFeedback is injected at the top of the next iteration context and
	// cleared once an iteration consumed it.
	RejectionFeedback string

	StartedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the run state.
func (s RunState) Validate() error {
	if s.Iteration < 1 {
		return fmt.Errorf("iteration must be >= 1: %w", ErrNotValid)
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("max iterations can't be negative: %w", ErrNotValid)
	}
	switch s.Mode {
	case RunModeSingle:
		if s.Prompt == "" {
			return fmt.Errorf("prompt is required: %w", ErrNotValid)
		}
	case RunModeBatch:
		if s.TasksTotal <= 0 {
			return fmt.Errorf("batch runs require tasks: %w", ErrNotValid)
		}
		if s.CurrentTaskIndex < 0 || s.CurrentTaskIndex >= s.TasksTotal {
			return fmt.Errorf("task index %d out of range [0, %d): %w", s.CurrentTaskIndex, s.TasksTotal, ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown mode %q: %w", s.Mode, ErrNotValid)
	}
	if s.ConsecutiveFailures < 0 {
		return fmt.Errorf("consecutive failures can't be negative: %w", ErrNotValid)
	}
	return nil
}

// IsBatch returns true when the run iterates over a task list.
func (s RunState) IsBatch() bool { return s.Mode == RunModeBatch }

// LimitReached returns true when a bounded run went past its last allowed iteration.
func (s RunState) LimitReached() bool {
	return s.MaxIterations > 0 && s.Iteration > s.MaxIterations
}

// HasPromise returns true when the run has a completion promise configured.
func (s RunState) HasPromise() bool { return s.CompletionPromise != "" }

// Goal is the work the current iteration targets.
type Goal struct {
	TaskID            string
	TaskTitle         string
	Prompt            string
	MaxIterations     int
	CompletionPromise string
}

// Goal returns the current goal of the run. On batch runs the task overrides the
// run iteration limit and completion promise.
func (s RunState) Goal(task *Task) Goal {
	g := Goal{
		Prompt:            s.Prompt,
		MaxIterations:     s.MaxIterations,
		CompletionPromise: s.CompletionPromise,
	}
	if task == nil {
		return g
	}

	g.TaskID = task.ID
	g.TaskTitle = task.Title
	g.Prompt = task.Prompt
	if task.MaxIterations != nil {
		g.MaxIterations = *task.MaxIterations
	}
	if task.CompletionPromise != nil {
		g.CompletionPromise = *task.CompletionPromise
	}
	return g
}

// LimitReached returns true when the iteration is past the goal iteration limit.
func (g Goal) LimitReached(iteration int) bool {
	return g.MaxIterations > 0 && iteration > g.MaxIterations
}
