package acceptance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/prompt"
	"github.com/slok/ralph/internal/storage"
	"github.com/slok/ralph/internal/verify"
)

// Summarizer describes the workspace changes.
type Summarizer interface {
	Summary(ctx context.Context) (string, error)
}

// Verifier runs verification commands.
type Verifier interface {
	Run(ctx context.Context, cmds []string) (bool, []verify.Result, error)
}

// CriticGateConfig is the configuration for the critic gate.
type CriticGateConfig struct {
	Runner agent.Runner
	// Optional evidence sources.
	Workspace       Summarizer
	Verifier        Verifier
	Memories        storage.MemoryRepository
	MemoryLimit     int
	Timeout         time.Duration
	OutputTailLines int
	Logger          log.Logger
}

func (c *CriticGateConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("agent runner is required")
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 600 * time.Second
	}
	if c.OutputTailLines <= 0 {
		c.OutputTailLines = 20
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "acceptance.CriticGate"})
	return nil
}

// CriticGate asks a second agent persona to review the claim. The gate fails
// closed: anything other than an explicit approval rejects.
type CriticGate struct {
	runner      agent.Runner
	workspace   Summarizer
	verifier    Verifier
	memories    storage.MemoryRepository
	memoryLimit int
	timeout     time.Duration
	tailLines   int
	logger      log.Logger
}

// NewCriticGate returns a new critic gate.
func NewCriticGate(cfg CriticGateConfig) (*CriticGate, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &CriticGate{
		runner:      cfg.Runner,
		workspace:   cfg.Workspace,
		verifier:    cfg.Verifier,
		memories:    cfg.Memories,
		memoryLimit: cfg.MemoryLimit,
		timeout:     cfg.Timeout,
		tailLines:   cfg.OutputTailLines,
		logger:      cfg.Logger,
	}, nil
}

func (g *CriticGate) Name() string { return GateCritic }

func (g *CriticGate) Review(ctx context.Context, claim *Claim) (model.ReviewVerdict, error) {
	in := prompt.CriticInput{
		Goal:            claim.Goal,
		Iteration:       claim.Iteration,
		CompileReport:   claim.CompileReport,
		AgentOutput:     claim.Output,
		OutputTailLines: g.tailLines,
	}

	if g.workspace != nil {
		summary, err := g.workspace.Summary(ctx)
		if err != nil {
			g.logger.Warningf("Could not get workspace summary: %s", err)
		}
		in.WorkspaceSummary = summary
	}

	if g.verifier != nil {
		if cmds := verify.ExtractCommands(claim.Goal.Prompt); len(cmds) > 0 {
			_, results, err := g.verifier.Run(ctx, cmds)
			if err != nil {
				if ctx.Err() != nil {
					return model.ReviewVerdict{}, ctx.Err()
				}
				g.logger.Warningf("Could not run verification commands: %s", err)
			}
			in.VerificationReport = verify.Report(results)
		}
	}

	if g.memories != nil {
		mems, err := g.memories.ListMemories(ctx, model.MemoryQuery{RunID: claim.State.RunID, Limit: g.memoryLimit})
		if err != nil {
			g.logger.Warningf("Could not list memories: %s", err)
		}
		in.Memories = mems
	}

	res, err := g.runner.Run(ctx, agent.Invocation{
		Prompt:  prompt.BuildCritic(in),
		Model:   claim.State.Model,
		Persona: agent.PersonaCritic,
		Timeout: g.timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.ReviewVerdict{}, ctx.Err()
		}
		return model.Rejected(GateCritic, fmt.Sprintf("The critic review could not run: %s", err)), nil
	}
	if res.TimedOut {
		return model.Rejected(GateCritic, "The critic review timed out."), nil
	}

	return ParseVerdict(res.Output), nil
}

var (
	verdictLineRe = regexp.MustCompile(`(?im)^[ \t*_#>]*VERDICT\s*:\s*\**\s*(APPROVED|REJECTED)\b`)
	rejectedRe    = regexp.MustCompile(`(?i)VERDICT\s*:\s*\**\s*REJECTED\b`)
	issueRe       = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s+(.+)$`)
)

// ParseVerdict parses the critic answer. Only verdicts at the start of a line
// count. It approves only when every verdict line approves and no rejection
// token appears anywhere, an answer without a verdict line is a rejection.
func ParseVerdict(output string) model.ReviewVerdict {
	verdicts := verdictLineRe.FindAllStringSubmatchIndex(output, -1)
	if len(verdicts) == 0 {
		return model.Rejected(GateCritic, "The critic answer had no verdict, the completion can't be trusted.")
	}

	rejectedAt := -1
	for _, loc := range verdicts {
		if strings.EqualFold(output[loc[2]:loc[3]], "REJECTED") {
			rejectedAt = loc[1]
			break
		}
	}
	if rejectedAt < 0 {
		loc := rejectedRe.FindStringIndex(output)
		if loc == nil {
			return model.Approved()
		}
		rejectedAt = loc[1]
	}

	var issues []string
	for _, line := range strings.Split(output[rejectedAt:], "\n") {
		if m := issueRe.FindStringSubmatch(line); m != nil {
			issues = append(issues, strings.TrimSpace(m[1]))
		}
	}
	if len(issues) == 0 {
		issues = []string{"The critic rejected the completion without details."}
	}

	return model.Rejected(GateCritic, issues...)
}
