package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/ralph/internal/app/loop"
	"github.com/slok/ralph/internal/engine"
	"github.com/slok/ralph/internal/model"
)

// engineFlags are the flags shared by the commands that iterate.
type engineFlags struct {
	noNetworkCheck    bool
	networkRetry      string
	networkMax        string
	noAutoCommit      bool
	noChangeDetection bool
	skipPreflight     bool
	runtime           string
	quiet             bool
}

func registerEngineFlags(cmd *kingpin.CmdClause, f *engineFlags) {
	cmd.Flag("no-network-check", "Don't probe connectivity before each iteration.").BoolVar(&f.noNetworkCheck)
	cmd.Flag("network-retry", "Initial wait between connectivity probes, it doubles up to the max wait in seconds or as a duration (e.g. 5, 5s).").PlaceHolder("SECONDS").StringVar(&f.networkRetry)
	cmd.Flag("network-max", "Total time to wait for connectivity before giving up, in seconds or as a duration, 0 waits forever (e.g. 1800, 30m).").PlaceHolder("SECONDS").StringVar(&f.networkMax)
	cmd.Flag("no-auto-commit", "Don't commit the work when the goal is accepted.").BoolVar(&f.noAutoCommit)
	cmd.Flag("no-change-detection", "Don't count iterations without file changes as failures.").BoolVar(&f.noChangeDetection)
	cmd.Flag("skip-preflight", "Don't ping the agent before iterating.").BoolVar(&f.skipPreflight)
	cmd.Flag("runtime", "Agent runtime, overrides the settings (process, docker, fake).").EnumVar(&f.runtime, model.AgentRuntimeProcess, model.AgentRuntimeDocker, model.AgentRuntimeFake)
	cmd.Flag("quiet", "Don't stream the agent output.").BoolVar(&f.quiet)
}

func (f engineFlags) apply(s *model.Settings) error {
	if f.noNetworkCheck {
		s.Network.Enabled = false
	}
	if f.networkRetry != "" {
		d, err := parseSeconds(f.networkRetry)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --network-retry %q: %w", f.networkRetry, model.ErrNotValid)
		}
		s.Network.InitialWait = d
		if s.Network.MaxWait < d {
			s.Network.MaxWait = d
		}
	}
	if f.networkMax != "" {
		d, err := parseSeconds(f.networkMax)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid --network-max %q: %w", f.networkMax, model.ErrNotValid)
		}
		s.Network.Budget = d
	}
	if f.noAutoCommit {
		s.Loop.AutoCommit = false
	}
	if f.noChangeDetection {
		s.Loop.DetectChanges = false
	}
	if f.runtime != "" {
		s.Agent.Runtime = f.runtime
	}
	return s.Validate()
}

// parseSeconds parses a bare number of seconds or a Go duration.
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// newLoopService wires the iteration engine from the settings. The returned
// function releases the engine resources.
func (c RootCommand) newLoopService(ctx context.Context, flags engineFlags) (*loop.Service, func(), error) {
	noop := func() {}

	settings, err := c.LoadSettings(ctx)
	if err != nil {
		return nil, noop, err
	}
	if err := flags.apply(&settings); err != nil {
		return nil, noop, err
	}

	dir, err := c.ProjectDir()
	if err != nil {
		return nil, noop, err
	}

	repo, err := c.RunRepository()
	if err != nil {
		return nil, noop, err
	}

	memories, err := c.MemoryRepository(ctx)
	if err != nil {
		return nil, noop, err
	}
	closeFn := func() {
		if err := memories.Close(); err != nil {
			c.Logger.Warningf("Could not close memory bank: %s", err)
		}
	}

	var stream io.Writer
	if !flags.quiet {
		stream = c.Stdout
	}

	svc, err := engine.New(ctx, engine.EngineConfig{
		Dir:           dir,
		Settings:      settings,
		Repository:    repo,
		Memories:      memories,
		Stream:        stream,
		SkipPreflight: flags.skipPreflight,
		Logger:        c.Logger,
	})
	if err != nil {
		closeFn()
		return nil, noop, fmt.Errorf("could not create engine: %w", err)
	}

	return svc, closeFn, nil
}

// runLoop builds the engine, executes one of its entrypoints and prints the report.
func (c RootCommand) runLoop(ctx context.Context, flags engineFlags, format string, fn func(*loop.Service, context.Context) (*model.LoopReport, error)) error {
	svc, cleanup, err := c.newLoopService(ctx, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	report, runErr := fn(svc, ctx)
	if report != nil && report.Phase != model.LoopPhaseIdle {
		if err := c.Printer(format).PrintReport(*report); err != nil {
			return fmt.Errorf("could not print report: %w", err)
		}
	}

	return runErr
}
