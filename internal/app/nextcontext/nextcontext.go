package nextcontext

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ContextBuilder builds the prompt of an iteration.
type ContextBuilder interface {
	BuildContext(ctx context.Context, state model.RunState, goal model.Goal) (string, error)
}

// ServiceConfig is the configuration for the next context service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Builder    ContextBuilder
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Builder == nil {
		return fmt.Errorf("context builder is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.NextContext"})
	return nil
}

// Service renders the prompt the next iteration of the active run would send.
type Service struct {
	repo    storage.RunRepository
	builder ContextBuilder
	logger  log.Logger
}

// NewService creates a new next context service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:    cfg.Repository,
		builder: cfg.Builder,
		logger:  cfg.Logger,
	}, nil
}

// Result is the rendered iteration prompt.
type Result struct {
	Goal   model.Goal
	Prompt string
}

// Run builds the iteration prompt from the run state without running anything.
func (s *Service) Run(ctx context.Context) (*Result, error) {
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

	prompt, err := s.builder.BuildContext(ctx, *state, goal)
	if err != nil {
		return nil, fmt.Errorf("could not build context: %w", err)
	}

	return &Result{Goal: goal, Prompt: prompt}, nil
}
