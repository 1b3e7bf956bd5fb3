package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage"
)

// ServiceConfig is the configuration for the history service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})
	return nil
}

// Service lists the audit log.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// CurrentRun only returns the entries of the active run.
	CurrentRun bool
	// Last limits the result to the last N entries, 0 means all.
	Last int
}

// Run returns the audit log entries in append order.
func (s *Service) Run(ctx context.Context, req Request) ([]model.HistoryEntry, error) {
	entries, err := s.repo.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list history: %w", err)
	}

	if req.CurrentRun {
		state, err := s.repo.GetState(ctx)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("there is no run to filter by: %w", model.ErrNoActiveRun)
			}
			return nil, fmt.Errorf("could not get run state: %w", err)
		}

		filtered := make([]model.HistoryEntry, 0, len(entries))
		for _, e := range entries {
			if e.RunID == state.RunID {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if req.Last > 0 && len(entries) > req.Last {
		entries = entries[len(entries)-req.Last:]
	}

	s.logger.Debugf("Listed %d history entries", len(entries))

	return entries, nil
}
