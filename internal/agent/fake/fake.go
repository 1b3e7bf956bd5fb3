// Package fake has an agent runner that replays scripted responses. It is used
// in tests and with the `fake` runtime to exercise the loop without a real agent.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/log"
)

// Step is a scripted agent response.
type Step struct {
	Output   string
	ExitCode int
	TimedOut bool
	Err      error
	// Do runs before returning the response, it can be used to simulate the agent
	// changing the workspace.
	Do func(inv agent.Invocation)
}

// RunnerConfig is the configuration for the fake runner.
type RunnerConfig struct {
	// Steps are the responses per persona, returned in order. When a persona script
	// is exhausted the default step is returned.
	Steps   map[string][]Step
	Default Step
	Logger  log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Steps == nil {
		c.Steps = map[string][]Step{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Fake"})
	return nil
}

// Runner is a scripted agent runner. Safe for concurrent use.
type Runner struct {
	steps  map[string][]Step
	def    Step
	logger log.Logger

	mu          sync.Mutex
	invocations []agent.Invocation
}

// NewRunner returns a new fake runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	steps := make(map[string][]Step, len(cfg.Steps))
	for k, v := range cfg.Steps {
		steps[k] = append([]Step(nil), v...)
	}

	return &Runner{
		steps:  steps,
		def:    cfg.Default,
		logger: cfg.Logger,
	}, nil
}

// Run satisfies agent.Runner interface.
func (r *Runner) Run(ctx context.Context, inv agent.Invocation) (*agent.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	step, ok := r.next(inv.Persona)
	r.mu.Unlock()

	if !ok {
		step = r.defaultFor(inv.Persona)
	}
	r.logger.Debugf("Fake %s invocation", inv.Persona)

	if step.Do != nil {
		step.Do(inv)
	}
	if step.Err != nil {
		return nil, step.Err
	}

	return &agent.Result{
		Output:   step.Output,
		ExitCode: step.ExitCode,
		TimedOut: step.TimedOut,
	}, nil
}

func (r *Runner) next(persona string) (Step, bool) {
	steps := r.steps[persona]
	if len(steps) == 0 {
		return Step{}, false
	}
	r.steps[persona] = steps[1:]
	return steps[0], true
}

func (r *Runner) defaultFor(persona string) Step {
	switch persona {
	case agent.PersonaPing:
		return Step{Output: "pong\n"}
	case agent.PersonaCritic:
		return Step{Output: "VERDICT: APPROVED\n"}
	}
	return r.def
}

// Invocations returns the received invocations in order.
func (r *Runner) Invocations() []agent.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]agent.Invocation(nil), r.invocations...)
}

// Count returns the number of received invocations for a persona.
func (r *Runner) Count(persona string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, inv := range r.invocations {
		if inv.Persona == persona {
			n++
		}
	}
	return n
}
