package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ServiceConfig is the configuration for the tasks service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Tasks"})
	return nil
}

// Service lists the task list of a batch run.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new tasks service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the tasks request parameters.
type Request struct {
	// Remaining only returns the current task and the ones after it.
	Remaining bool
}

// Result is the batch task list.
type Result struct {
	Tasks   []model.Task
	Current model.Task
	// Done is the number of tasks already completed or skipped.
	Done int
}

// Run returns the tasks of the active batch run in execution order.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	state, err := s.repo.GetState(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("enable a batch run first: %w", model.ErrNoActiveRun)
		}
		return nil, fmt.Errorf("could not get run state: %w", err)
	}
	if !state.IsBatch() {
		return nil, fmt.Errorf("the active run is not a batch run: %w", model.ErrNotValid)
	}

	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	idx := state.CurrentTaskIndex
	if idx < 0 || idx >= len(tasks) {
		return nil, fmt.Errorf("task index %d out of range, %d tasks: %w", idx, len(tasks), model.ErrNotValid)
	}

	res := &Result{Tasks: tasks, Current: tasks[idx], Done: idx}
	if req.Remaining {
		res.Tasks = tasks[idx:]
	}

	s.logger.Debugf("Listed %d tasks, current is %s", len(res.Tasks), res.Current.ID)

	return res, nil
}
