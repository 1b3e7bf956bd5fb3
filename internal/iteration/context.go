package iteration

import (
	"context"
	"fmt"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/prompt"
	"github.com/slok/ralph/internal/storage"
)

// Summarizer describes the workspace changes.
type Summarizer interface {
	Summary(ctx context.Context) (string, error)
}

// ContextAssemblerConfig is the configuration for the context assembler.
type ContextAssemblerConfig struct {
	History storage.HistoryRepository
	Outputs storage.OutputRepository
	// Optional sources.
	Memories        storage.MemoryRepository
	Workspace       Summarizer
	MemoryLimit     int
	OutputTailLines int
	Logger          log.Logger
}

func (c *ContextAssemblerConfig) defaults() error {
	if c.History == nil {
		return fmt.Errorf("history repository is required")
	}
	if c.Outputs == nil {
		return fmt.Errorf("output repository is required")
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 20
	}
	if c.OutputTailLines <= 0 {
		c.OutputTailLines = 20
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "iteration.ContextAssembler"})
	return nil
}

// ContextAssembler gathers the iteration context sources and builds the prompt.
// Optional sources that fail are logged and left out.
type ContextAssembler struct {
	history     storage.HistoryRepository
	outputs     storage.OutputRepository
	memories    storage.MemoryRepository
	workspace   Summarizer
	memoryLimit int
	tailLines   int
	logger      log.Logger
}

// NewContextAssembler returns a new context assembler.
func NewContextAssembler(cfg ContextAssemblerConfig) (*ContextAssembler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ContextAssembler{
		history:     cfg.History,
		outputs:     cfg.Outputs,
		memories:    cfg.Memories,
		workspace:   cfg.Workspace,
		memoryLimit: cfg.MemoryLimit,
		tailLines:   cfg.OutputTailLines,
		logger:      cfg.Logger,
	}, nil
}

// BuildContext satisfies ContextBuilder interface.
func (a *ContextAssembler) BuildContext(ctx context.Context, state model.RunState, goal model.Goal) (string, error) {
	lastOutput, err := a.outputs.GetOutput(ctx)
	if err != nil {
		return "", fmt.Errorf("could not get last output: %w", err)
	}

	history, err := a.history.ListHistory(ctx)
	if err != nil {
		return "", fmt.Errorf("could not list history: %w", err)
	}

	in := prompt.ContextInput{
		State:             state,
		Goal:              goal,
		RejectionFeedback: state.RejectionFeedback,
		LastOutput:        lastOutput,
		OutputTailLines:   a.tailLines,
		History:           filterRun(history, state.RunID),
	}

	if a.memories != nil {
		mems, err := a.memories.ListMemories(ctx, model.MemoryQuery{RunID: state.RunID, Limit: a.memoryLimit})
		if err != nil {
			a.logger.Warningf("Could not list memories: %s", err)
		}
		in.Memories = mems
	}

	if a.workspace != nil {
		summary, err := a.workspace.Summary(ctx)
		if err != nil {
			a.logger.Warningf("Could not get workspace summary: %s", err)
		}
		in.WorkspaceSummary = summary
	}

	return prompt.BuildContext(in), nil
}

func filterRun(entries []model.HistoryEntry, runID string) []model.HistoryEntry {
	if runID == "" {
		return entries
	}

	res := make([]model.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.RunID == runID {
			res = append(res, e)
		}
	}
	return res
}
