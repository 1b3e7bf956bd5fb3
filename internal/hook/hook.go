// Package hook runs the user lifecycle hooks. Hooks are notifications: their
// failures are logged and never change the loop flow.
package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/utils/env"
)

// RunnerConfig is the configuration for the hook runner.
type RunnerConfig struct {
	// Dir has executable scripts named after the hook.
	Dir string
	// Commands are shell commands per hook, they take precedence over the scripts.
	Commands map[string]string
	WorkDir  string
	Timeout  time.Duration
	Logger   log.Logger
}

func (c *RunnerConfig) defaults() error {
	for name := range c.Commands {
		if !model.IsHookName(name) {
			return fmt.Errorf("unknown hook %q", name)
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "hook.Runner"})
	return nil
}

// Runner runs lifecycle hooks.
type Runner struct {
	dir      string
	commands map[string]string
	workDir  string
	timeout  time.Duration
	logger   log.Logger
}

// NewRunner returns a new hook runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		dir:      cfg.Dir,
		commands: cfg.Commands,
		workDir:  cfg.WorkDir,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}, nil
}

// Run runs the hook if it is configured, the hook environment is added to the
// current process environment.
func (r *Runner) Run(ctx context.Context, name string, hookEnv map[string]string) {
	argv, ok := r.resolve(name)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = 5 * time.Second
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), env.List(env.Merge(hookEnv, map[string]string{"RALPH_HOOK": name}))...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger := r.logger.WithValues(log.Kv{"hook": name})
	if err := cmd.Run(); err != nil {
		logger.Warningf("Hook failed: %s: %s", err, strings.TrimSpace(out.String()))
		return
	}
	logger.Debugf("Hook executed")
}

func (r *Runner) resolve(name string) ([]string, bool) {
	if c, ok := r.commands[name]; ok && c != "" {
		return []string{"sh", "-c", c}, true
	}

	if r.dir == "" {
		return nil, false
	}
	path := filepath.Join(r.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warningf("Could not stat hook %s: %s", path, err)
		}
		return nil, false
	}
	if info.IsDir() {
		return nil, false
	}
	if info.Mode().Perm()&0o111 == 0 {
		r.logger.Warningf("Hook %s is not executable, ignoring", path)
		return nil, false
	}

	return []string{path}, true
}

// Env returns the common hook environment for an iteration.
func Env(state model.RunState, exitCode int) map[string]string {
	return map[string]string{
		"RALPH_ITERATION":      fmt.Sprint(state.Iteration),
		"RALPH_MAX_ITERATIONS": fmt.Sprint(state.MaxIterations),
		"RALPH_TASK_ID":        state.CurrentTaskID,
		"RALPH_MODE":           string(state.Mode),
		"RALPH_EXIT_CODE":      fmt.Sprint(exitCode),
		"RALPH_RUN_ID":         state.RunID,
	}
}
