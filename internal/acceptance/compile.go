package acceptance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
)

// checker is a compile or static analysis command for a kind of project.
type checker struct {
	markers []string
	binary  string
	command string
}

var knownCheckers = []checker{
	{markers: []string{"go.mod"}, binary: "go", command: "go vet ./..."},
	{markers: []string{"Cargo.toml"}, binary: "cargo", command: "cargo check --quiet"},
	{markers: []string{"tsconfig.json"}, binary: "npx", command: "npx --no-install tsc --noEmit"},
	{markers: []string{"pyproject.toml", "setup.py", "requirements.txt"}, binary: "python3", command: "python3 -m compileall -q ."},
}

// DetectCompileCommand returns the checker command for the project at root based
// on its marker files, empty when the project kind is unknown or its checker is
// not installed.
func DetectCompileCommand(root string, lookPath func(string) (string, error)) string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	for _, c := range knownCheckers {
		for _, m := range c.markers {
			if _, err := os.Stat(filepath.Join(root, m)); err != nil {
				continue
			}
			if _, err := lookPath(c.binary); err != nil {
				return ""
			}
			return c.command
		}
	}
	return ""
}

// CompileGateConfig is the configuration for the compile gate.
type CompileGateConfig struct {
	WorkDir string
	// Command is the checker to run, when empty and AutoDetect is set it's
	// detected from the project files.
	Command    string
	AutoDetect bool
	Timeout    time.Duration
	MaxLines   int
	LookPath   func(string) (string, error)
	Logger     log.Logger
}

func (c *CompileGateConfig) defaults() error {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxLines <= 0 {
		c.MaxLines = 40
	}
	if c.LookPath == nil {
		c.LookPath = exec.LookPath
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "acceptance.CompileGate"})
	return nil
}

// CompileGate rejects claims when the project doesn't compile or the static
// analysis reports errors. Without a checker the gate passes.
type CompileGate struct {
	workDir    string
	command    string
	autoDetect bool
	timeout    time.Duration
	maxLines   int
	lookPath   func(string) (string, error)
	logger     log.Logger
}

// NewCompileGate returns a new compile gate.
func NewCompileGate(cfg CompileGateConfig) (*CompileGate, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &CompileGate{
		workDir:    cfg.WorkDir,
		command:    cfg.Command,
		autoDetect: cfg.AutoDetect,
		timeout:    cfg.Timeout,
		maxLines:   cfg.MaxLines,
		lookPath:   cfg.LookPath,
		logger:     cfg.Logger,
	}, nil
}

func (g *CompileGate) Name() string { return GateCompile }

func (g *CompileGate) Review(ctx context.Context, claim *Claim) (model.ReviewVerdict, error) {
	command := g.command
	if command == "" && g.autoDetect {
		command = DetectCompileCommand(g.workDir, g.lookPath)
	}
	if command == "" {
		g.logger.Debugf("No compile checker, skipping")
		return model.Approved(), nil
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = g.workDir
	cmd.WaitDelay = 5 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return model.ReviewVerdict{}, ctx.Err()
	}

	output := strings.TrimSpace(out.String())
	switch {
	case err == nil:
		if diags := diagnosticLines(output); len(diags) > 0 {
			claim.CompileReport = fmt.Sprintf("`%s` exited 0 but reported errors:\n```\n%s\n```", command, truncateLines(diags, g.maxLines))
			return model.Rejected(GateCompile, claim.CompileReport), nil
		}
		claim.CompileReport = fmt.Sprintf("`%s` passed.", command)
		return model.Approved(), nil
	case cctx.Err() != nil:
		claim.CompileReport = fmt.Sprintf("`%s` timed out after %s.", command, g.timeout)
		return model.Rejected(GateCompile, claim.CompileReport), nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return model.ReviewVerdict{}, fmt.Errorf("could not run compile checker %q: %w", command, err)
	}

	excerpt := errorExcerpt(output, g.maxLines)
	claim.CompileReport = fmt.Sprintf("`%s` failed with exit code %d:\n```\n%s\n```", command, exitErr.ExitCode(), excerpt)
	return model.Rejected(GateCompile, claim.CompileReport), nil
}

// errorExcerpt keeps the error lines of a checker output, falling back to the
// output head when no line looks like an error.
func errorExcerpt(output string, maxLines int) string {
	if output == "" {
		return "(no output)"
	}

	lines := strings.Split(output, "\n")
	var errLines []string
	for _, l := range lines {
		ll := strings.ToLower(l)
		if strings.Contains(ll, "error") || strings.Contains(ll, "cannot") || strings.Contains(ll, "undefined") {
			errLines = append(errLines, l)
		}
	}
	if len(errLines) == 0 {
		errLines = lines
	}

	return truncateLines(errLines, maxLines)
}

// diagnosticRe matches compiler diagnostics like "error:", "error TS2304:" or
// "error[E0308]:". Summaries such as "0 errors" don't match.
var diagnosticRe = regexp.MustCompile(`(?i)\berror(?:\[[a-z]*\d+\]| [a-z]+\d+)?:`)

// diagnosticLines returns the output lines that report a compiler error.
func diagnosticLines(output string) []string {
	var lines []string
	for _, l := range strings.Split(output, "\n") {
		if diagnosticRe.MatchString(l) {
			lines = append(lines, l)
		}
	}
	return lines
}

func truncateLines(lines []string, maxLines int) string {
	if len(lines) > maxLines {
		rest := len(lines) - maxLines
		lines = append(lines[:maxLines:maxLines], fmt.Sprintf("... (%d more lines)", rest))
	}
	return strings.Join(lines, "\n")
}
