package memory

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

// ServiceConfig is the configuration for the memory service.
type ServiceConfig struct {
	Repository storage.StateRepository
	Memories   storage.MemoryRepository
	Now        func() time.Time
	NewID      func() string
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Memories == nil {
		return fmt.Errorf("memory repository is required")
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Memory"})
	return nil
}

// Service reads and writes the memory bank of the active run.
type Service struct {
	repo     storage.StateRepository
	memories storage.MemoryRepository
	now      func() time.Time
	newID    func() string
	logger   log.Logger
}

// NewService creates a new memory service.
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

// ListRequest represents the memory listing parameters.
type ListRequest struct {
	// AllRuns lists the memories of every run instead of the active one.
	AllRuns bool
	Kind    model.MemoryKind
	// Search keeps the memories that have every word of the query, case insensitive.
	Search string
	// Limit is the maximum number of memories, 0 means all.
	Limit int
}

// List returns the matching memories, newest first.
func (s *Service) List(ctx context.Context, req ListRequest) ([]model.Memory, error) {
	if err := validKind(req.Kind, true); err != nil {
		return nil, err
	}

	q := model.MemoryQuery{Kind: req.Kind, Limit: req.Limit}
	if !req.AllRuns {
		state, err := s.activeRun(ctx)
		if err != nil {
			return nil, err
		}
		q.RunID = state.RunID
	}

	words := strings.Fields(strings.ToLower(req.Search))
	if len(words) > 0 {
		q.Limit = 0
	}

	mems, err := s.memories.ListMemories(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("could not list memories: %w", err)
	}

	if len(words) > 0 {
		mems = search(mems, words)
		if req.Limit > 0 && len(mems) > req.Limit {
			mems = mems[:req.Limit]
		}
	}

	s.logger.Debugf("Listed %d memories", len(mems))

	return mems, nil
}

// AddRequest represents a manual memory.
type AddRequest struct {
	Kind    model.MemoryKind
	Content string
}

// Add stores a memory on the active run at its current iteration.
func (s *Service) Add(ctx context.Context, req AddRequest) (*model.Memory, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("memory content is required: %w", model.ErrNotValid)
	}
	if req.Kind == "" {
		req.Kind = model.MemoryKindSemantic
	}
	if err := validKind(req.Kind, false); err != nil {
		return nil, err
	}

	state, err := s.activeRun(ctx)
	if err != nil {
		return nil, err
	}

	m := model.Memory{
		ID:        s.newID(),
		RunID:     state.RunID,
		TaskID:    state.CurrentTaskID,
		Iteration: state.Iteration,
		Kind:      req.Kind,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.memories.AddMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("could not add memory: %w", err)
	}

	s.logger.Infof("Added %s memory %s", m.Kind, m.ID)

	return &m, nil
}

func (s *Service) activeRun(ctx context.Context) (*model.RunState, error) {
	state, err := s.repo.GetState(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("enable a run first: %w", model.ErrNoActiveRun)
		}
		return nil, fmt.Errorf("could not get run state: %w", err)
	}
	return state, nil
}

func validKind(k model.MemoryKind, allowEmpty bool) error {
	switch k {
	case model.MemoryKindEpisodic, model.MemoryKindError, model.MemoryKindSemantic:
		return nil
	case "":
		if allowEmpty {
			return nil
		}
	}
	return fmt.Errorf("unknown memory kind %q: %w", k, model.ErrNotValid)
}

func search(mems []model.Memory, words []string) []model.Memory {
	res := make([]model.Memory, 0, len(mems))
	for _, m := range mems {
		content := strings.ToLower(m.Content)
		match := true
		for _, w := range words {
			if !strings.Contains(content, w) {
				match = false
				break
			}
		}
		if match {
			res = append(res, m)
		}
	}
	return res
}
