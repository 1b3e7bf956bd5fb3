package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ServiceConfig is the configuration for the status service.
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

	return nil
}

// Service retrieves the run status.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Run retrieves the status of the project run.
func (s *Service) Run(ctx context.Context) (*model.RunStatus, error) {
	res := &model.RunStatus{}

	cp, err := s.repo.GetCheckpoint(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get checkpoint: %w", err)
	}
	if err == nil {
		res.Checkpoint = cp
	}

	state, err := s.repo.GetState(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Debugf("No active run")
			return res, nil
		}
		return nil, fmt.Errorf("could not get run state: %w", err)
	}
	res.State = state
	res.Goal = state.Goal(nil)

	if state.IsBatch() {
		tasks, err := s.repo.ListTasks(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list tasks: %w", err)
		}
		if idx := state.CurrentTaskIndex; idx >= 0 && idx < len(tasks) {
			res.Goal = state.Goal(&tasks[idx])
		}
	}

	history, err := s.repo.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list history: %w", err)
	}
	for i := range history {
		if history[i].RunID != state.RunID {
			continue
		}
		res.HistoryCount++
		res.LastEntry = &history[i]
	}

	output, err := s.repo.GetOutput(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get last output: %w", err)
	}
	res.LastOutputBytes = int64(len(output))

	return res, nil
}
