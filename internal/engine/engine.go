// Package engine assembles the iteration engine of a project from its settings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/slok/ralph/internal/acceptance"
	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/agent/docker"
	"github.com/slok/ralph/internal/agent/fake"
	"github.com/slok/ralph/internal/agent/process"
	"github.com/slok/ralph/internal/app/loop"
	"github.com/slok/ralph/internal/conventions"
	"github.com/slok/ralph/internal/hook"
	"github.com/slok/ralph/internal/iteration"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/network"
	"github.com/slok/ralph/internal/storage"
	storageio "github.com/slok/ralph/internal/storage/io"
	"github.com/slok/ralph/internal/utils/env"
	"github.com/slok/ralph/internal/verify"
	"github.com/slok/ralph/internal/workspace"
)

// EngineConfig is the configuration of the engine.
type EngineConfig struct {
	// Dir is the project root.
	Dir        string
	Settings   model.Settings
	Repository storage.RunRepository
	Memories   storage.MemoryRepository
	// Runner replaces the agent runner selected by the settings runtime.
	Runner agent.Runner
	// Stream receives the agent output while it runs.
	Stream        io.Writer
	SkipPreflight bool
	Logger        log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("project dir is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Memories == nil {
		return fmt.Errorf("memory repository is required")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// New returns the loop service of a project wired with the collaborators the
// settings ask for.
func New(ctx context.Context, cfg EngineConfig) (*loop.Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := cfg.Settings
	logger := cfg.Logger

	hooksDir := s.Hooks.Dir
	if hooksDir == "" {
		hooksDir = conventions.RunFilePath(cfg.Dir, conventions.HooksDir)
	}
	hooks, err := hook.NewRunner(hook.RunnerConfig{
		Dir:      hooksDir,
		Commands: s.Hooks.Commands,
		WorkDir:  cfg.Dir,
		Timeout:  s.Hooks.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create hook runner: %w", err)
	}

	ws, err := workspace.New(workspace.WorkspaceConfig{Root: cfg.Dir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create workspace: %w", err)
	}

	// Git is optional, without it there is no summary and no commit.
	isGit := ws.IsGitRepo(ctx)
	var summarizer acceptance.Summarizer
	if isGit {
		summarizer = ws
	} else {
		logger.Debugf("%s is not a git repository", cfg.Dir)
	}

	runner := cfg.Runner
	if runner == nil {
		runner, err = NewAgentRunner(s.Agent, cfg.Dir, cfg.Stream, logger)
		if err != nil {
			return nil, err
		}
	}

	var waiter iteration.Waiter
	if s.Network.Enabled {
		prober, err := NewProber(s.Network, cfg.Dir, logger)
		if err != nil {
			return nil, err
		}

		waiter, err = network.NewWaiter(network.WaiterConfig{
			Checker:     prober,
			Checkpoints: cfg.Repository,
			Hooks:       hooks,
			InitialWait: s.Network.InitialWait,
			MaxWait:     s.Network.MaxWait,
			SettleDelay: s.Network.SettleDelay,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create waiter: %w", err)
		}
	}

	assemblerCfg := iteration.ContextAssemblerConfig{
		History:         cfg.Repository,
		Outputs:         cfg.Repository,
		Memories:        cfg.Memories,
		OutputTailLines: s.Loop.OutputTailLines,
		Logger:          logger,
	}
	if summarizer != nil {
		assemblerCfg.Workspace = summarizer
	}
	assembler, err := iteration.NewContextAssembler(assemblerCfg)
	if err != nil {
		return nil, fmt.Errorf("could not create context assembler: %w", err)
	}

	executor, err := iteration.NewExecutor(iteration.ExecutorConfig{
		Runner:          runner,
		Context:         assembler,
		Checkpoints:     cfg.Repository,
		Outputs:         cfg.Repository,
		Waiter:          waiter,
		NetworkCheck:    s.Network.Enabled,
		NetworkBudget:   s.Network.Budget,
		NetworkRetries:  s.Network.MaxRetries,
		Workspace:       ws,
		DetectChanges:   s.Loop.DetectChanges,
		AgentTimeout:    s.Agent.Timeout,
		PingTimeout:     s.Agent.PingTimeout,
		PingPrompt:      s.Agent.PingPrompt,
		OutputTailLines: s.Loop.OutputTailLines,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create executor: %w", err)
	}

	gates, err := newGates(s, cfg.Dir, runner, summarizer, cfg.Memories, logger)
	if err != nil {
		return nil, err
	}
	pipeline, err := acceptance.NewPipeline(acceptance.PipelineConfig{Gates: gates, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create acceptance pipeline: %w", err)
	}

	svcCfg := loop.ServiceConfig{
		Repository:             cfg.Repository,
		Executor:               executor,
		Reviewer:               pipeline,
		Memories:               cfg.Memories,
		Hooks:                  hooks,
		MaxConsecutiveFailures: s.Loop.MaxConsecutiveFailures,
		Interval:               s.Loop.Interval,
		SkipPreflight:          cfg.SkipPreflight,
		OutputTailLines:        s.Loop.OutputTailLines,
		Logger:                 logger,
	}
	if s.Loop.AutoCommit && isGit {
		svcCfg.Committer = ws
	}
	svc, err := loop.NewService(svcCfg)
	if err != nil {
		return nil, fmt.Errorf("could not create loop service: %w", err)
	}

	return svc, nil
}

// NewAgentRunner returns the agent runner of a runtime. The variables of the
// project agent env file are passed to the agent, settings env takes precedence.
func NewAgentRunner(s model.AgentSettings, dir string, stream io.Writer, logger log.Logger) (agent.Runner, error) {
	if logger == nil {
		logger = log.Noop
	}

	fileEnv, err := storageio.NewAgentEnvFileRepository(os.DirFS(conventions.RunDir(dir))).GetAgentEnv(context.Background(), conventions.AgentEnvFile)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("could not load agent env: %w", err)
	default:
		logger.Debugf("Loaded %d agent env variables from %s", len(fileEnv), conventions.AgentEnvFile)
		s.Env = env.Merge(fileEnv, s.Env)
	}

	var runner agent.Runner
	switch s.Runtime {
	case model.AgentRuntimeDocker:
		runner, err = docker.NewRunner(docker.RunnerConfig{
			Image:   s.DockerImage,
			Command: s.Command,
			Args:    s.Args,
			WorkDir: dir,
			Env:     s.Env,
			Stream:  stream,
			Logger:  logger,
		})
	case model.AgentRuntimeFake:
		runner, err = fake.NewRunner(fake.RunnerConfig{
			Default: fake.Step{Output: "fake agent: nothing to do\n"},
			Logger:  logger,
		})
	default:
		runner, err = process.NewRunner(process.RunnerConfig{
			Command: s.Command,
			Args:    s.Args,
			WorkDir: dir,
			Env:     s.Env,
			Stream:  stream,
			Logger:  logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("could not create %s agent runner: %w", s.Runtime, err)
	}

	return runner, nil
}

// NewProber returns the connectivity prober of a project.
func NewProber(s model.NetworkSettings, dir string, logger log.Logger) (*network.Prober, error) {
	prober, err := network.NewProber(network.ProberConfig{
		Hosts:       s.Hosts,
		Timeout:     s.ProbeTimeout,
		OfflineFile: OfflineFile(dir),
		OfflineEnv:  conventions.ForceOfflineEnv,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create prober: %w", err)
	}
	return prober, nil
}

// OfflineFile is the forced offline marker of a project.
func OfflineFile(dir string) string {
	return conventions.RunFilePath(dir, conventions.ForceOfflineFile)
}

func newGates(s model.Settings, dir string, runner agent.Runner, summarizer acceptance.Summarizer, memories storage.MemoryRepository, logger log.Logger) ([]acceptance.Gate, error) {
	gates := []acceptance.Gate{acceptance.NewMinIterationGate(s.Acceptance.MinIteration)}

	if s.Acceptance.CompileCommand != "" || s.Acceptance.AutoDetectCompile {
		compile, err := acceptance.NewCompileGate(acceptance.CompileGateConfig{
			WorkDir:    dir,
			Command:    s.Acceptance.CompileCommand,
			AutoDetect: s.Acceptance.AutoDetectCompile,
			Timeout:    s.Acceptance.CompileTimeout,
			MaxLines:   s.Acceptance.FeedbackMaxLines,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create compile gate: %w", err)
		}
		gates = append(gates, compile)
	}

	if s.Acceptance.Critic {
		verifier, err := verify.NewRunner(verify.RunnerConfig{
			WorkDir:  dir,
			Timeout:  s.Acceptance.VerifyTimeout,
			MaxLines: s.Acceptance.FeedbackMaxLines,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create verification runner: %w", err)
		}

		critic, err := acceptance.NewCriticGate(acceptance.CriticGateConfig{
			Runner:          runner,
			Workspace:       summarizer,
			Verifier:        verifier,
			Memories:        memories,
			Timeout:         s.Agent.Timeout,
			OutputTailLines: s.Loop.OutputTailLines,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create critic gate: %w", err)
		}
		gates = append(gates, critic)
	}

	return gates, nil
}
