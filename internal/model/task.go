package model

import (
	"fmt"
)

// Task is a single unit of work of a batch run.
type Task struct {
	ID     string
	Title  string
	Prompt string

	// Optional per task overrides of the run settings.
	MaxIterations     *int
	CompletionPromise *string
}

// Validate validates the task.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if t.Prompt == "" {
		return fmt.Errorf("task %s prompt is required: %w", t.ID, ErrNotValid)
	}
	if t.MaxIterations != nil && *t.MaxIterations < 0 {
		return fmt.Errorf("task %s max iterations can't be negative: %w", t.ID, ErrNotValid)
	}
	return nil
}

// TaskProgress represents the completion state of a batch run.
type TaskProgress struct {
	Done  int
	Total int
}

// TaskID returns the canonical ID for the task at a zero based index.
func TaskID(index int) string { return fmt.Sprintf("TASK-%03d", index+1) }
