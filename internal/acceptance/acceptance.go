// Package acceptance decides if a completion claim of the agent is trusted. The
// gates run in order and the first rejection stops the pipeline, its feedback
// is injected at the top of the next iteration context.
package acceptance

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
)

// Gate names.
const (
	GateMinIteration = "min_iteration"
	GateCompile      = "compile"
	GateCritic       = "critic"
)

// Claim is a completion claim under review. Gates can add evidence for the
// next gates.
type Claim struct {
	State     model.RunState
	Goal      model.Goal
	Iteration int
	Output    string

	CompileReport string
}

// Gate reviews a completion claim. Errors are reserved for cancellations and
// broken dependencies, a gate that can't decide rejects.
type Gate interface {
	Name() string
	Review(ctx context.Context, claim *Claim) (model.ReviewVerdict, error)
}

// PipelineConfig is the configuration for the acceptance pipeline.
type PipelineConfig struct {
	Gates  []Gate
	Logger log.Logger
}

func (c *PipelineConfig) defaults() error {
	for i, g := range c.Gates {
		if g == nil {
			return fmt.Errorf("gate %d is nil", i)
		}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "acceptance.Pipeline"})
	return nil
}

// Pipeline runs the gates in strict order.
type Pipeline struct {
	gates  []Gate
	logger log.Logger
}

// NewPipeline returns a new acceptance pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Pipeline{
		gates:  cfg.Gates,
		logger: cfg.Logger,
	}, nil
}

// Review runs the claim through every gate, the first rejection is returned.
func (p *Pipeline) Review(ctx context.Context, claim Claim) (model.ReviewVerdict, error) {
	for _, g := range p.gates {
		logger := p.logger.WithValues(log.Kv{"gate": g.Name()})

		v, err := g.Review(ctx, &claim)
		if err != nil {
			return model.ReviewVerdict{}, fmt.Errorf("%s gate: %w", g.Name(), err)
		}
		if !v.Approved {
			if v.Gate == "" {
				v.Gate = g.Name()
			}
			logger.Warningf("Completion claim rejected: %d issues", len(v.Issues))
			return v, nil
		}
		logger.Infof("Gate passed")
	}

	return model.Approved(), nil
}

// Feedback formats a rejected verdict as feedback for the next iteration.
func Feedback(v model.ReviewVerdict) string {
	if v.Approved {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rejected by the %s gate:\n", v.Gate)
	for _, issue := range v.Issues {
		issue = strings.TrimSpace(issue)
		if issue == "" {
			continue
		}
		if strings.Contains(issue, "\n") {
			b.WriteString(issue)
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	return strings.TrimRight(b.String(), "\n")
}

// MinIterationGate rejects claims made too early in the run.
type MinIterationGate struct {
	min int
}

// NewMinIterationGate returns a gate that rejects claims before the minIteration.
func NewMinIterationGate(minIteration int) *MinIterationGate {
	if minIteration < 1 {
		minIteration = 1
	}
	return &MinIterationGate{min: minIteration}
}

func (g *MinIterationGate) Name() string { return GateMinIteration }

func (g *MinIterationGate) Review(_ context.Context, claim *Claim) (model.ReviewVerdict, error) {
	if claim.Iteration < g.min {
		return model.Rejected(GateMinIteration, fmt.Sprintf(
			"Completion was claimed on iteration %d, at least %d iterations are required. Review your work, run the tests and claim again only if everything is done.",
			claim.Iteration, g.min)), nil
	}
	return model.Approved(), nil
}
