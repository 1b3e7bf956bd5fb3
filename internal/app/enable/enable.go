package enable

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ServiceConfig is the configuration for the enable service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Enable"})
	return nil
}

// Service enables a single task run.
type Service struct {
	repo   storage.RunRepository
	now    func() time.Time
	newID  func() string
	logger log.Logger
}

// NewService creates a new enable service.
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

// Request represents the enable request parameters.
type Request struct {
	Prompt            string
	MaxIterations     int
	CompletionPromise string
	Model             string
	FallbackModel     string
	AutoSubagents     bool
}

// Run enables a new run. It fails with model.ErrRunActive when a run is already enabled.
func (s *Service) Run(ctx context.Context, req Request) (*model.RunState, error) {
	_, err := s.repo.GetState(ctx)
	if err == nil {
		return nil, fmt.Errorf("disable the current run first: %w", model.ErrRunActive)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get run state: %w", err)
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
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
		Mode:              model.RunModeSingle,
		Prompt:            req.Prompt,
		Model:             req.Model,
		FallbackModel:     req.FallbackModel,
		AutoSubagents:     req.AutoSubagents,
		StartedAt:         now,
		UpdatedAt:         now,
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run: %w", err)
	}

	// A stale checkpoint from a previous run must not be resumed.
	if err := s.repo.ClearCheckpoint(ctx); err != nil {
		return nil, fmt.Errorf("could not clear checkpoint: %w", err)
	}

	if err := s.repo.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("could not save run state: %w", err)
	}

	err = s.repo.AppendHistory(ctx, model.HistoryEntry{
		ID:        s.newID(),
		RunID:     state.RunID,
		Iteration: 0,
		Outcome:   model.HistoryOutcomeEnabled,
		Notes:     notes(state),
		Timestamp: now,
	})
	if err != nil {
		return nil, fmt.Errorf("could not append history: %w", err)
	}

	s.logger.Infof("Enabled run %s", state.RunID)

	return &state, nil
}

func notes(s model.RunState) string {
	limit := "unbounded"
	if s.MaxIterations > 0 {
		limit = fmt.Sprintf("max %d", s.MaxIterations)
	}
	if s.CompletionPromise == "" {
		return limit
	}
	return fmt.Sprintf("%s, promise %q", limit, s.CompletionPromise)
}
