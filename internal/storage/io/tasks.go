package io

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/slok/ralph/internal/model"
)

// TasksFileRepository loads batch task lists from YAML or JSON files.
type TasksFileRepository struct {
	fs fs.FS
}

// NewTasksFileRepository creates a new task list repository.
func NewTasksFileRepository(filesystem fs.FS) *TasksFileRepository {
	return &TasksFileRepository{fs: filesystem}
}

// GetTasks loads and normalizes a task list. The file can be a list of tasks or an
// object with a `tasks` list. Each task is either a prompt string or an object.
func (r *TasksFileRepository) GetTasks(ctx context.Context, path string) ([]model.Task, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading tasks file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing tasks file: %w", err)
	}

	var items []TaskConfig
	if len(root.Content) > 0 {
		doc := root.Content[0]
		switch doc.Kind {
		case yaml.SequenceNode:
			err = doc.Decode(&items)
		case yaml.MappingNode:
			var wrapped struct {
				Tasks []TaskConfig `yaml:"tasks"`
			}
			err = doc.Decode(&wrapped)
			items = wrapped.Tasks
		default:
			err = fmt.Errorf("expected a task list")
		}
		if err != nil {
			return nil, fmt.Errorf("parsing tasks file: %w", err)
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("tasks file has no tasks: %w", model.ErrNotValid)
	}

	tasks := make([]model.Task, 0, len(items))
	seen := map[string]bool{}
	for i, item := range items {
		t := item.toModel(i)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("task id %s is duplicated: %w", t.ID, model.ErrNotValid)
		}
		seen[t.ID] = true
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// TaskConfig represents a task entry of a task list file.
type TaskConfig struct {
	ID                string  `yaml:"id"`
	Title             string  `yaml:"title"`
	Prompt            string  `yaml:"prompt"`
	MaxIterations     *int    `yaml:"max_iterations"`
	CompletionPromise *string `yaml:"completion_promise"`
}

// UnmarshalYAML accepts plain strings as prompt only tasks.
func (t *TaskConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.Prompt = value.Value
		return nil
	}

	type plain TaskConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = TaskConfig(p)
	return nil
}

func (t TaskConfig) toModel(index int) model.Task {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		id = model.TaskID(index)
	}

	prompt := strings.TrimSpace(t.Prompt)
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = titleFromPrompt(prompt, id)
	}

	return model.Task{
		ID:                id,
		Title:             title,
		Prompt:            prompt,
		MaxIterations:     t.MaxIterations,
		CompletionPromise: t.CompletionPromise,
	}
}

const maxTitleLen = 60

func titleFromPrompt(prompt, fallback string) string {
	line, _, _ := strings.Cut(prompt, "\n")
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if line == "" {
		return fallback
	}
	if len(line) > maxTitleLen {
		line = strings.TrimSpace(line[:maxTitleLen]) + "..."
	}
	return line
}

func errorsIsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
