package disable

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ServiceConfig is the configuration for the disable service.
type ServiceConfig struct {
	Repository storage.RunRepository
	// Memories is optional, when set the memory bank is reset.
	Memories storage.MemoryRepository
	Now      func() time.Time
	NewID    func() string
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = func() string { return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Disable"})
	return nil
}

// Service disables the active run.
type Service struct {
	repo     storage.RunRepository
	memories storage.MemoryRepository
	now      func() time.Time
	newID    func() string
	logger   log.Logger
}

// NewService creates a new disable service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:     cfg.Repository,
		memories: cfg.Memories,
		now:      cfg.Now,
		newID:    cfg.NewID,
		logger:   cfg.Logger,
	}, nil
}

// Run removes the run state, checkpoint and task list. The history is kept as
// the audit log. It returns the disabled run or nil when there was none, in
// both cases the leftovers are cleaned.
func (s *Service) Run(ctx context.Context) (*model.RunState, error) {
	state, err := s.repo.GetState(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get run state: %w", err)
	}
	if err != nil {
		state = nil
	}

	if err := s.repo.ClearCheckpoint(ctx); err != nil {
		return nil, fmt.Errorf("could not clear checkpoint: %w", err)
	}
	if err := s.repo.DeleteTasks(ctx); err != nil {
		return nil, fmt.Errorf("could not delete tasks: %w", err)
	}
	if err := s.repo.DeleteState(ctx); err != nil {
		return nil, fmt.Errorf("could not delete run state: %w", err)
	}
	if s.memories != nil {
		if err := s.memories.ResetMemories(ctx); err != nil {
			return nil, fmt.Errorf("could not reset memory bank: %w", err)
		}
	}

	if state == nil {
		s.logger.Debugf("No active run to disable")
		return nil, nil
	}

	err = s.repo.AppendHistory(ctx, model.HistoryEntry{
		ID:        s.newID(),
		RunID:     state.RunID,
		Iteration: state.Iteration,
		TaskID:    state.CurrentTaskID,
		Outcome:   model.HistoryOutcomeDisabled,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("could not append history: %w", err)
	}

	s.logger.Infof("Disabled run %s at iteration %d", state.RunID, state.Iteration)

	return state, nil
}
