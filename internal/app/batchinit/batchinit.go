package batchinit

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

// TasksLoader loads a task list file.
type TasksLoader interface {
	GetTasks(ctx context.Context, path string) ([]model.Task, error)
}

// ServiceConfig is the configuration for the batch init service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Loader     TasksLoader
	Now        func() time.Time
	NewID      func() string
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Loader == nil {
		return fmt.Errorf("tasks loader is required")
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.BatchInit"})
	return nil
}

// Service enables a batch run from a task list file.
type Service struct {
	repo   storage.RunRepository
	loader TasksLoader
	now    func() time.Time
	newID  func() string
	logger log.Logger
}

// NewService creates a new batch init service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		loader: cfg.Loader,
		now:    cfg.Now,
		newID:  cfg.NewID,
		logger: cfg.Logger,
	}, nil
}

// Request represents the batch init request parameters.
type Request struct {
	TasksFile string
	// MaxIterations is the per task limit, tasks can override it. 0 uses the batch default.
	MaxIterations     int
	CompletionPromise string
	Model             string
	FallbackModel     string
	AutoSubagents     bool
}

// Result is the enabled batch run.
type Result struct {
	State model.RunState
	Tasks []model.Task
}

// Run enables a batch run starting at the first task.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	_, err := s.repo.GetState(ctx)
	if err == nil {
		return nil, fmt.Errorf("disable the current run first: %w", model.ErrRunActive)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get run state: %w", err)
	}

	tasks, err := s.loader.GetTasks(ctx, req.TasksFile)
	if err != nil {
		return nil, fmt.Errorf("could not load tasks from %q: %w", req.TasksFile, err)
	}

	if req.MaxIterations <= 0 {
		req.MaxIterations = model.DefaultBatchMaxIterations
	}
	if req.Model == "" {
		req.Model = model.DefaultModel
	}
	if req.FallbackModel == "" {
		req.FallbackModel = model.DefaultFallbackModel
	}

	now := s.now()
	state := model.RunState{
		RunID:             s.newID(),
		Iteration:         1,
		MaxIterations:     req.MaxIterations,
		CompletionPromise: req.CompletionPromise,
		Mode:              model.RunModeBatch,
		CurrentTaskIndex:  0,
		TasksTotal:        len(tasks),
		CurrentTaskID:     tasks[0].ID,
		Model:             req.Model,
		FallbackModel:     req.FallbackModel,
		AutoSubagents:     req.AutoSubagents,
		StartedAt:         now,
		UpdatedAt:         now,
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run: %w", err)
	}

	if err := s.repo.ClearCheckpoint(ctx); err != nil {
		return nil, fmt.Errorf("could not clear checkpoint: %w", err)
	}
	if err := s.repo.SaveTasks(ctx, tasks); err != nil {
		return nil, fmt.Errorf("could not save tasks: %w", err)
	}
	if err := s.repo.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("could not save run state: %w", err)
	}

	err = s.repo.AppendHistory(ctx, model.HistoryEntry{
		ID:        s.newID(),
		RunID:     state.RunID,
		Outcome:   model.HistoryOutcomeEnabled,
		Notes:     fmt.Sprintf("batch of %d tasks", len(tasks)),
		Timestamp: now,
	})
	if err != nil {
		return nil, fmt.Errorf("could not append history: %w", err)
	}

	s.logger.Infof("Enabled batch run %s with %d tasks", state.RunID, len(tasks))

	return &Result{State: state, Tasks: tasks}, nil
}
