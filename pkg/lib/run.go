package lib

import (
	"context"
	"fmt"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/app/batchinit"
	"github.com/slok/ralph/internal/app/disable"
	"github.com/slok/ralph/internal/app/enable"
	"github.com/slok/ralph/internal/app/loop"
	"github.com/slok/ralph/internal/app/nexttask"
	"github.com/slok/ralph/internal/engine"
	"github.com/slok/ralph/internal/model"
)

// EnableOpts configures a single goal run.
type EnableOpts struct {
	// Prompt is the goal (required).
	Prompt string
	// MaxIterations is the iteration limit, 0 is unbounded.
	MaxIterations int
	// CompletionPromise is the phrase the agent outputs inside
	// `<promise></promise>` to claim completion.
	CompletionPromise string
	// Model defaults to the ralph default model.
	Model         string
	FallbackModel string
	AutoSubagents bool
}

// Enable starts a new single goal run.
//
// Returns [ErrRunActive] if the project already has an enabled run.
func (c *Client) Enable(ctx context.Context, opts EnableOpts) (*Run, error) {
	svc, err := enable.NewService(enable.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	state, err := svc.Run(ctx, enable.Request{
		Prompt:            opts.Prompt,
		MaxIterations:     opts.MaxIterations,
		CompletionPromise: opts.CompletionPromise,
		Model:             opts.Model,
		FallbackModel:     opts.FallbackModel,
		AutoSubagents:     opts.AutoSubagents,
	})
	if err != nil {
		return nil, mapError(err)
	}

	r := fromInternalRun(*state)
	return &r, nil
}

// BatchOpts configures a batch run.
type BatchOpts struct {
	// Tasks are processed in order. Tasks without ID get `TASK-NNN` by position
	// and tasks without title use their ID.
	Tasks []Task
	// MaxIterations is the per task limit, tasks can override it. 0 uses the
	// batch default.
	MaxIterations     int
	CompletionPromise string
	Model             string
	FallbackModel     string
	AutoSubagents     bool
}

// BatchInit starts a new batch run over a list of tasks.
//
// Returns [ErrRunActive] if the project already has an enabled run.
func (c *Client) BatchInit(ctx context.Context, opts BatchOpts) (*Run, []Task, error) {
	tasks := toInternalTasks(opts.Tasks)
	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = model.TaskID(i)
		}
		if tasks[i].Title == "" {
			tasks[i].Title = tasks[i].ID
		}
	}

	svc, err := batchinit.NewService(batchinit.ServiceConfig{
		Repository: c.repo,
		Loader:     staticTasks(tasks),
		Logger:     c.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, batchinit.Request{
		TasksFile:         "sdk",
		MaxIterations:     opts.MaxIterations,
		CompletionPromise: opts.CompletionPromise,
		Model:             opts.Model,
		FallbackModel:     opts.FallbackModel,
		AutoSubagents:     opts.AutoSubagents,
	})
	if err != nil {
		return nil, nil, mapError(err)
	}

	r := fromInternalRun(res.State)
	return &r, fromInternalTasks(res.Tasks), nil
}

type staticTasks []model.Task

func (s staticTasks) GetTasks(_ context.Context, _ string) ([]model.Task, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("at least one task is required: %w", model.ErrNotValid)
	}
	return s, nil
}

// Disable stops the active run and removes its files, the history is kept.
// Returns the disabled run, nil when there was no active run.
func (c *Client) Disable(ctx context.Context) (*Run, error) {
	svc, err := disable.NewService(disable.ServiceConfig{
		Repository: c.repo,
		Memories:   c.memories,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	state, err := svc.Run(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if state == nil {
		return nil, nil
	}

	r := fromInternalRun(*state)
	return &r, nil
}

// NextTask skips the current task of a batch run. Returns the next task, nil
// when the skipped task was the last one and the batch finished.
//
// Returns [ErrNoActiveRun] without a run and [ErrNotValid] on single goal runs.
func (c *Client) NextTask(ctx context.Context) (*Task, error) {
	svc, err := nexttask.NewService(nexttask.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if res.Next == nil {
		return nil, nil
	}

	t := fromInternalTask(*res.Next)
	return &t, nil
}

// LoopOpts configures a loop execution.
//
// Pass nil to use the project settings as they are.
type LoopOpts struct {
	// SkipPreflight doesn't ping the agent before iterating.
	SkipPreflight bool
	// DisableNetworkCheck doesn't probe connectivity before each iteration.
	DisableNetworkCheck bool
	// DisableAutoCommit doesn't commit the work when the goal is accepted.
	DisableAutoCommit bool
}

// Run iterates the active run until the goal is accepted or the run halts.
//
// A halted run returns the report and an error matching [ErrHalted].
func (c *Client) Run(ctx context.Context, opts *LoopOpts) (*Report, error) {
	return c.loop(ctx, opts, (*loop.Service).Run)
}

// Single runs exactly one iteration of the active run.
func (c *Client) Single(ctx context.Context, opts *LoopOpts) (*Report, error) {
	return c.loop(ctx, opts, (*loop.Service).Single)
}

// Resume continues an interrupted or halted run from its checkpoint.
func (c *Client) Resume(ctx context.Context, opts *LoopOpts) (*Report, error) {
	return c.loop(ctx, opts, (*loop.Service).Resume)
}

func (c *Client) loop(ctx context.Context, opts *LoopOpts, fn func(*loop.Service, context.Context) (*model.LoopReport, error)) (*Report, error) {
	if opts == nil {
		opts = &LoopOpts{}
	}

	settings := c.settings
	if opts.DisableNetworkCheck {
		settings.Network.Enabled = false
	}
	if opts.DisableAutoCommit {
		settings.Loop.AutoCommit = false
	}

	var runner agent.Runner
	if c.agent != nil {
		runner = c.agent.runner()
	}

	svc, err := engine.New(ctx, engine.EngineConfig{
		Dir:           c.dir,
		Settings:      settings,
		Repository:    c.repo,
		Memories:      c.memories,
		Runner:        runner,
		Stream:        c.stream,
		SkipPreflight: opts.SkipPreflight,
		Logger:        c.logger,
	})
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create engine: %w", err))
	}

	report, err := fn(svc, ctx)
	return fromInternalReport(report), mapError(err)
}
