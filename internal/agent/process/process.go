package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/utils/env"
)

// RunnerConfig is the configuration for the local process agent runner.
type RunnerConfig struct {
	Command string
	Args    []string
	WorkDir string
	Env     map[string]string
	// Stream receives the agent output while it runs (optional).
	Stream io.Writer
	// MaxOutputBytes bounds the captured output, the oldest bytes are dropped.
	MaxOutputBytes int
	Logger         log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	if c.Stream == nil {
		c.Stream = io.Discard
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Process"})
	return nil
}

// Runner runs the agent as a local subprocess in its own process group, so a
// timeout or cancellation kills every process the agent spawned.
type Runner struct {
	command  string
	args     []string
	workDir  string
	env      map[string]string
	stream   io.Writer
	maxBytes int
	logger   log.Logger
}

// NewRunner returns a new process agent runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		command:  cfg.Command,
		args:     cfg.Args,
		workDir:  cfg.WorkDir,
		env:      cfg.Env,
		stream:   cfg.Stream,
		maxBytes: cfg.MaxOutputBytes,
		logger:   cfg.Logger,
	}, nil
}

// Run runs the agent until it exits or the invocation timeout is reached.
func (r *Runner) Run(ctx context.Context, inv agent.Invocation) (*agent.Result, error) {
	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	args, useStdin := agent.ExpandArgs(r.args, inv)
	cmd := exec.CommandContext(runCtx, r.command, args...)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), env.List(env.Merge(r.env, inv.Env))...)
	setProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	if useStdin {
		cmd.Stdin = strings.NewReader(inv.Prompt)
	}

	buffer := &limitedBuffer{max: r.maxBytes}
	out := io.MultiWriter(r.stream, buffer)
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.Debugf("Running %s agent (%s)", inv.Persona, r.command)
	start := time.Now()
	err := cmd.Run()
	res := &agent.Result{
		Output:   buffer.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			res.TimedOut = true
			res.ExitCode = -1
			r.logger.Warningf("Agent timed out after %s", inv.Timeout)
		case ctx.Err() != nil:
			return res, ctx.Err()
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("could not run agent: %w", err)
		}
	}

	return res, nil
}

// limitedBuffer keeps the last max bytes written.
type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return len(p), nil
	}
	if drop := len(b.buf) + len(p) - b.max; drop > 0 {
		b.buf = append(b.buf[:0], b.buf[drop:]...)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
