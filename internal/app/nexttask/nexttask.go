package nexttask

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

// ServiceConfig is the configuration for the next task service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Now        func() time.Time
	NewID      func() string
	Logger     log.Logger
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.NextTask"})
	return nil
}

// Service skips the current task of a batch run.
type Service struct {
	repo   storage.RunRepository
	now    func() time.Time
	newID  func() string
	logger log.Logger
}

// NewService creates a new next task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		now:    cfg.Now,
		newID:  cfg.NewID,
		logger: cfg.Logger,
	}, nil
}

// Result is the outcome of skipping a task.
type Result struct {
	Skipped model.Task
	// Next is nil when the skipped task was the last one and the run ended.
	Next  *model.Task
	State model.RunState
}

// Run skips the current task and moves the run to the next one. Skipping the last
// task ends the batch.
func (s *Service) Run(ctx context.Context) (*Result, error) {
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
	skipped := tasks[idx]

	if err := s.repo.ClearCheckpoint(ctx); err != nil {
		return nil, fmt.Errorf("could not clear checkpoint: %w", err)
	}
	if err := s.appendHistory(ctx, *state, skipped.ID, model.HistoryOutcomeTaskSkipped, "manual"); err != nil {
		return nil, err
	}

	state.TasksSkipped++
	state.CurrentTaskIndex++
	state.Iteration = 1
	state.RejectionFeedback = ""
	state.ConsecutiveFailures = 0
	state.UpdatedAt = s.now()

	res := &Result{Skipped: skipped}

	if state.CurrentTaskIndex >= len(tasks) {
		if err := s.appendHistory(ctx, *state, "", model.HistoryOutcomeHalted, fmt.Sprintf("%s: %d", model.HaltReasonTasksSkipped, state.TasksSkipped)); err != nil {
			return nil, err
		}
		if err := s.repo.DeleteTasks(ctx); err != nil {
			return nil, fmt.Errorf("could not delete tasks: %w", err)
		}
		if err := s.repo.DeleteState(ctx); err != nil {
			return nil, fmt.Errorf("could not delete run state: %w", err)
		}
		s.logger.Infof("Skipped the last task %s, batch finished", skipped.ID)
		res.State = *state
		return res, nil
	}

	next := tasks[state.CurrentTaskIndex]
	state.CurrentTaskID = next.ID
	if err := s.repo.SaveState(ctx, *state); err != nil {
		return nil, fmt.Errorf("could not save run state: %w", err)
	}

	s.logger.Infof("Skipped task %s, moving to %s", skipped.ID, next.ID)
	res.Next = &next
	res.State = *state
	return res, nil
}

func (s *Service) appendHistory(ctx context.Context, state model.RunState, taskID string, outcome model.HistoryOutcome, notes string) error {
	err := s.repo.AppendHistory(ctx, model.HistoryEntry{
		ID:        s.newID(),
		RunID:     state.RunID,
		Iteration: state.Iteration,
		TaskID:    taskID,
		Outcome:   outcome,
		Notes:     notes,
		Timestamp: s.now(),
	})
	if err != nil {
		return fmt.Errorf("could not append history: %w", err)
	}
	return nil
}
