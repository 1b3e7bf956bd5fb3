package complete

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ServiceConfig is the configuration for the complete service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Complete"})
	return nil
}

// Service checks an agent output for the completion promise of the current goal.
// It never changes the run, accepting a completion is the loop's job.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new complete service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the complete request parameters.
type Request struct {
	// Output is the text to check, empty checks the last saved agent output.
	Output string
}

// Result is the outcome of a completion check.
type Result struct {
	Goal     model.Goal
	Detected bool
}

// Run returns whether the output claims the completion of the current goal.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	state, err := s.repo.GetState(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("enable a run first: %w", model.ErrNoActiveRun)
		}
		return nil, fmt.Errorf("could not get run state: %w", err)
	}

	goal := state.Goal(nil)
	if state.IsBatch() {
		tasks, err := s.repo.ListTasks(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list tasks: %w", err)
		}
		idx := state.CurrentTaskIndex
		if idx < 0 || idx >= len(tasks) {
			return nil, fmt.Errorf("task index %d out of range, %d tasks: %w", idx, len(tasks), model.ErrNotValid)
		}
		goal = state.Goal(&tasks[idx])
	}
	if strings.TrimSpace(goal.CompletionPromise) == "" {
		return nil, fmt.Errorf("the current goal has no completion promise: %w", model.ErrNotValid)
	}

	output := req.Output
	if strings.TrimSpace(output) == "" {
		output, err = s.repo.GetOutput(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not get last output: %w", err)
		}
	}

	res := &Result{
		Goal:     goal,
		Detected: agent.DetectCompletion(output, goal.CompletionPromise),
	}
	s.logger.Debugf("Completion promise detected: %t", res.Detected)

	return res, nil
}
