// Package iteration runs a single iteration of the coding agent: connectivity,
// context, agent execution, network retries, model fallback and the
// classification of the result.
package iteration

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/network"
	"github.com/slok/ralph/internal/storage"
)

// Waiter blocks until there is connectivity or the wait budget is exhausted.
type Waiter interface {
	WaitUntilReachable(ctx context.Context, req network.WaitRequest) (network.WaitResult, error)
}

// ContextBuilder builds the prompt of an iteration.
type ContextBuilder interface {
	BuildContext(ctx context.Context, state model.RunState, goal model.Goal) (string, error)
}

// Fingerprinter hashes the workspace contents.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// ExecutorConfig is the configuration for the iteration executor.
type ExecutorConfig struct {
	Runner      agent.Runner
	Context     ContextBuilder
	Checkpoints storage.CheckpointRepository
	Outputs     storage.OutputRepository
	// Waiter is required when NetworkCheck is enabled.
	Waiter        Waiter
	NetworkCheck  bool
	NetworkBudget time.Duration
	// NetworkRetries is how many times a network failed invocation is retried.
	NetworkRetries int
	// Workspace is required when DetectChanges is enabled.
	Workspace       Fingerprinter
	DetectChanges   bool
	AgentTimeout    time.Duration
	PingTimeout     time.Duration
	PingPrompt      string
	OutputTailLines int
	Now             func() time.Time
	Logger          log.Logger
}

func (c *ExecutorConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("agent runner is required")
	}
	if c.Context == nil {
		return fmt.Errorf("context builder is required")
	}
	if c.Checkpoints == nil {
		return fmt.Errorf("checkpoint repository is required")
	}
	if c.Outputs == nil {
		return fmt.Errorf("output repository is required")
	}
	if c.NetworkCheck && c.Waiter == nil {
		return fmt.Errorf("waiter is required when network check is enabled")
	}
	if c.DetectChanges && c.Workspace == nil {
		return fmt.Errorf("workspace is required when change detection is enabled")
	}
	if c.NetworkRetries < 0 {
		c.NetworkRetries = 0
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 600 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 30 * time.Second
	}
	if c.PingPrompt == "" {
		c.PingPrompt = "Reply with the single word: pong"
	}
	if c.OutputTailLines <= 0 {
		c.OutputTailLines = 20
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "iteration.Executor"})
	return nil
}

// Executor runs iterations.
type Executor struct {
	runner         agent.Runner
	contextBuilder ContextBuilder
	checkpoints    storage.CheckpointRepository
	outputs        storage.OutputRepository
	waiter         Waiter
	networkCheck   bool
	networkBudget  time.Duration
	networkRetries int
	workspace      Fingerprinter
	detectChanges  bool
	agentTimeout   time.Duration
	pingTimeout    time.Duration
	pingPrompt     string
	tailLines      int
	now            func() time.Time
	logger         log.Logger
}

// NewExecutor returns a new iteration executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Executor{
		runner:         cfg.Runner,
		contextBuilder: cfg.Context,
		checkpoints:    cfg.Checkpoints,
		outputs:        cfg.Outputs,
		waiter:         cfg.Waiter,
		networkCheck:   cfg.NetworkCheck,
		networkBudget:  cfg.NetworkBudget,
		networkRetries: cfg.NetworkRetries,
		workspace:      cfg.Workspace,
		detectChanges:  cfg.DetectChanges,
		agentTimeout:   cfg.AgentTimeout,
		pingTimeout:    cfg.PingTimeout,
		pingPrompt:     cfg.PingPrompt,
		tailLines:      cfg.OutputTailLines,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}, nil
}

// Preflight checks the agent answers at all. A failed preflight is fatal and
// it's not retried.
func (e *Executor) Preflight(ctx context.Context, state model.RunState) error {
	res, err := e.runner.Run(ctx, agent.Invocation{
		Prompt:  e.pingPrompt,
		Model:   state.Model,
		Persona: agent.PersonaPing,
		Timeout: e.pingTimeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", model.ErrPreflight, err)
	}
	if res.TimedOut {
		return fmt.Errorf("%w: agent didn't answer in %s", model.ErrPreflight, e.pingTimeout)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: agent exited with code %d: %s", model.ErrPreflight, res.ExitCode, agent.Tail(res.Output, 5))
	}

	return nil
}

// RunIteration runs the current iteration of the run. Errors are only returned
// for cancellations and storage problems, agent problems are failed results.
func (e *Executor) RunIteration(ctx context.Context, state model.RunState, goal model.Goal) (model.IterationResult, error) {
	logger := e.logger.WithValues(log.Kv{"iteration": state.Iteration, "task": goal.TaskID})
	start := e.now()

	if err := e.saveCheckpoint(ctx, state, goal, model.CheckpointStatusIterationStarted, ""); err != nil {
		return model.IterationResult{}, err
	}

	if ok, err := e.waitNetwork(ctx, state, goal); err != nil || !ok {
		if err != nil {
			return model.IterationResult{}, err
		}
		return e.failure(model.FailureKindNetworkTimeout, "", -1, start), nil
	}

	prompt, err := e.contextBuilder.BuildContext(ctx, state, goal)
	if err != nil {
		return model.IterationResult{}, fmt.Errorf("could not build iteration context: %w", err)
	}

	var before string
	if e.detectChanges {
		before, err = e.workspace.Fingerprint(ctx)
		if err != nil {
			return model.IterationResult{}, err
		}
	}

	currentModel := state.Model
	fallbackUsed := false
	networkRetries := 0
	var res *agent.Result
	for {
		if err := e.saveCheckpoint(ctx, state, goal, model.CheckpointStatusExecuting, ""); err != nil {
			return model.IterationResult{}, err
		}

		logger.Infof("Running agent (model: %s)", currentModel)
		res, err = e.runner.Run(ctx, agent.Invocation{
			Prompt:  prompt,
			Model:   currentModel,
			Persona: agent.PersonaWorker,
			Timeout: e.agentTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return model.IterationResult{}, ctx.Err()
			}
			logger.Errorf("Agent could not run: %s", err)
			r := e.failure(model.FailureKindAgentError, err.Error(), -1, start)
			r.Model = currentModel
			return r, nil
		}

		if err := e.outputs.SaveOutput(ctx, res.Output); err != nil {
			return model.IterationResult{}, fmt.Errorf("could not save agent output: %w", err)
		}

		if res.TimedOut {
			logger.Warningf("Agent timed out after %s", e.agentTimeout)
			r := e.failure(model.FailureKindTimeout, res.Output, res.ExitCode, start)
			r.Model = currentModel
			return r, nil
		}

		if agent.IsNetworkError(*res) {
			networkRetries++
			if err := e.saveCheckpoint(ctx, state, goal, model.CheckpointStatusNetworkError, agent.Tail(res.Output, e.tailLines)); err != nil {
				return model.IterationResult{}, err
			}
			if networkRetries > e.networkRetries {
				logger.Warningf("Agent failed with network errors %d times, giving up", networkRetries)
				r := e.failure(model.FailureKindNetworkTransient, res.Output, res.ExitCode, start)
				r.Model = currentModel
				return r, nil
			}

			logger.Warningf("Agent failed with a network error, retrying (%d/%d)", networkRetries, e.networkRetries)
			if ok, err := e.waitNetwork(ctx, state, goal); err != nil || !ok {
				if err != nil {
					return model.IterationResult{}, err
				}
				return e.failure(model.FailureKindNetworkTimeout, res.Output, res.ExitCode, start), nil
			}
			continue
		}

		if agent.IsModelUnavailable(*res) {
			if !fallbackUsed && state.FallbackModel != "" && state.FallbackModel != currentModel {
				logger.Warningf("Model %s unavailable, falling back to %s", currentModel, state.FallbackModel)
				currentModel = state.FallbackModel
				fallbackUsed = true
				continue
			}
			r := e.failure(model.FailureKindModelUnavailable, res.Output, res.ExitCode, start)
			r.Model = currentModel
			return r, nil
		}

		break
	}

	result := model.IterationResult{
		Output:   res.Output,
		ExitCode: res.ExitCode,
		Model:    currentModel,
		Changed:  true,
		Duration: e.now().Sub(start),
	}

	if e.detectChanges {
		after, err := e.workspace.Fingerprint(ctx)
		if err != nil {
			return model.IterationResult{}, err
		}
		result.Changed = after != before
		if !result.Changed && res.ExitCode == 0 {
			logger.Warningf("Agent exited cleanly without changing any file")
			result.Outcome = model.IterationOutcomeFailure
			result.FailureKind = model.FailureKindNoChange
			return result, nil
		}
	}

	if agent.DetectCompletion(res.Output, goal.CompletionPromise) {
		logger.Infof("Agent claims completion")
		result.Outcome = model.IterationOutcomeCompletionClaimed
		return result, nil
	}

	if res.ExitCode != 0 {
		logger.Warningf("Agent exited with code %d", res.ExitCode)
		result.Outcome = model.IterationOutcomeFailure
		result.FailureKind = model.FailureKindAgentError
		return result, nil
	}

	result.Outcome = model.IterationOutcomeSuccess
	return result, nil
}

// WaitNetwork waits for connectivity before resuming a run interrupted by a
// network problem. It returns false when the wait budget was exhausted.
func (e *Executor) WaitNetwork(ctx context.Context, state model.RunState, goal model.Goal) (bool, error) {
	return e.waitNetwork(ctx, state, goal)
}

func (e *Executor) waitNetwork(ctx context.Context, state model.RunState, goal model.Goal) (bool, error) {
	if !e.networkCheck {
		return true, nil
	}

	res, err := e.waiter.WaitUntilReachable(ctx, network.WaitRequest{
		Budget:    e.networkBudget,
		Iteration: state.Iteration,
		TaskID:    goal.TaskID,
	})
	if err != nil {
		return false, err
	}
	return res == network.WaitResultReachable, nil
}

func (e *Executor) failure(kind model.FailureKind, output string, exitCode int, start time.Time) model.IterationResult {
	return model.IterationResult{
		Outcome:     model.IterationOutcomeFailure,
		FailureKind: kind,
		Output:      output,
		ExitCode:    exitCode,
		Duration:    e.now().Sub(start),
	}
}

func (e *Executor) saveCheckpoint(ctx context.Context, state model.RunState, goal model.Goal, status model.CheckpointStatus, tail string) error {
	err := e.checkpoints.SaveCheckpoint(ctx, model.Checkpoint{
		Status:     status,
		Iteration:  state.Iteration,
		TaskID:     goal.TaskID,
		Timestamp:  e.now(),
		PID:        os.Getpid(),
		OutputTail: tail,
	})
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}
	return nil
}
