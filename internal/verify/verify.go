// Package verify extracts and runs the verification commands of a task. The
// results are evidence for the critic, a failed verification never stops the loop.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/slok/ralph/internal/log"
)

const sectionHeader = "## Verification"

var (
	nextHeaderRe = regexp.MustCompile(`(?m)^##\s+`)
	codeBlockRe  = regexp.MustCompile("(?is)```(?:bash|sh)?\n(.*?)```")
	numberedRe   = regexp.MustCompile(`^\d+\.\s+`)
)

// Section returns the body of a markdown `## <name>` section, matched case
// insensitive, up to the next second level header.
func Section(text, header string) string {
	headerRe := regexp.MustCompile(`(?im)^` + regexp.QuoteMeta(header) + `\s*$`)
	loc := headerRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}

	rest := text[loc[1]:]
	if next := nextHeaderRe.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return strings.TrimSpace(rest)
}

// ExtractCommands returns the verification commands of a task prompt. Fenced
// shell blocks take precedence, otherwise `$ cmd`, bullet and numbered lines
// are used.
func ExtractCommands(prompt string) []string {
	section := Section(prompt, sectionHeader)
	if section == "" {
		return nil
	}

	var cmds []string
	for _, m := range codeBlockRe.FindAllStringSubmatch(section, -1) {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.HasPrefix(line, "$") {
				line = strings.TrimLeft(line, "$ ")
			}
			if line != "" {
				cmds = append(cmds, line)
			}
		}
	}
	if len(cmds) > 0 {
		return cmds
	}

	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		var cmd string
		switch {
		case strings.HasPrefix(line, "$"):
			cmd = strings.TrimLeft(line, "$ ")
		case strings.HasPrefix(line, "- "):
			cmd = line[2:]
		case numberedRe.MatchString(line):
			cmd = numberedRe.ReplaceAllString(line, "")
		}
		if cmd = strings.TrimSpace(cmd); cmd != "" {
			cmds = append(cmds, cmd)
		}
	}

	return cmds
}

// Result is the result of a single verification command.
type Result struct {
	Command  string `json:"command"`
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
	Output   string `json:"output"`
}

// RunnerConfig is the configuration for the verification runner.
type RunnerConfig struct {
	WorkDir  string
	Timeout  time.Duration
	MaxLines int
	Logger   log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxLines <= 0 {
		c.MaxLines = 120
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "verify.Runner"})
	return nil
}

// Runner runs verification commands.
type Runner struct {
	workDir  string
	timeout  time.Duration
	maxLines int
	logger   log.Logger
}

// NewRunner returns a new verification runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		workDir:  cfg.WorkDir,
		timeout:  cfg.Timeout,
		maxLines: cfg.MaxLines,
		logger:   cfg.Logger,
	}, nil
}

// Run runs all the commands in order, a failed command doesn't stop the rest.
// The returned bool is true when every command succeeded.
func (r *Runner) Run(ctx context.Context, cmds []string) (bool, []Result, error) {
	allOK := true
	results := make([]Result, 0, len(cmds))
	for _, c := range cmds {
		res, err := r.run(ctx, c)
		if err != nil {
			return false, nil, err
		}
		if !res.OK {
			allOK = false
		}
		results = append(results, res)
	}

	return allOK, results, nil
}

func (r *Runner) run(ctx context.Context, command string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = r.workDir
	cmd.WaitDelay = 5 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	res := Result{Command: command, Output: Truncate(out.String(), r.maxLines)}
	switch {
	case err == nil:
		res.OK = true
	case cctx.Err() != nil:
		res.TimedOut = true
		res.ExitCode = -1
		res.Output = strings.TrimSpace(res.Output + fmt.Sprintf("\nTimed out after %s", r.timeout))
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("could not run verification command %q: %w", command, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	r.logger.Debugf("Verification %q ok=%t", command, res.OK)

	return res, nil
}

// Truncate keeps the first maxLines lines of the text.
func Truncate(text string, maxLines int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
}

// Report formats verification results as markdown.
func Report(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range results {
		status := "PASS"
		if !r.OK {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "- [%s] `%s`", status, r.Command)
		if !r.OK && !r.TimedOut {
			fmt.Fprintf(&b, " (exit %d)", r.ExitCode)
		}
		b.WriteString("\n")
		if r.Output != "" {
			b.WriteString("```\n")
			b.WriteString(r.Output)
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}
