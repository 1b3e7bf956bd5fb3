package agent

import (
	"context"
	"strings"
	"time"
)

// Personas of an agent invocation.
const (
	PersonaWorker = "worker"
	PersonaCritic = "critic"
	PersonaPing   = "ping"
)

// Invocation is a single call to the coding agent.
type Invocation struct {
	Prompt  string
	Model   string
	Persona string
	Timeout time.Duration
	Env     map[string]string
}

// Result is the outcome of an agent invocation. A non zero exit code is advisory,
// callers look at the output too.
type Result struct {
	Output   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Runner invokes the coding agent. An error means the agent could not be run at
// all (e.g. missing binary), not that the agent failed.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// RunnerFunc is a helper to implement Runner with functions.
type RunnerFunc func(ctx context.Context, inv Invocation) (*Result, error)

// Run satisfies Runner interface.
func (r RunnerFunc) Run(ctx context.Context, inv Invocation) (*Result, error) { return r(ctx, inv) }

const (
	placeholderPrompt = "{prompt}"
	placeholderModel  = "{model}"
)

// ExpandArgs replaces the invocation placeholders in the agent arguments. When the
// arguments have no prompt placeholder the prompt must be written to the agent
// stdin and useStdin is true.
func ExpandArgs(args []string, inv Invocation) (expanded []string, useStdin bool) {
	hasPrompt := false
	expanded = make([]string, 0, len(args))
	for _, a := range args {
		if strings.Contains(a, placeholderPrompt) {
			hasPrompt = true
		}

		// Drop model flags when there is no model, e.g. `--model {model}`.
		if a == placeholderModel && inv.Model == "" {
			if n := len(expanded); n > 0 && strings.HasPrefix(expanded[n-1], "-") {
				expanded = expanded[:n-1]
			}
			continue
		}

		a = strings.ReplaceAll(a, placeholderModel, inv.Model)
		a = strings.ReplaceAll(a, placeholderPrompt, inv.Prompt)
		expanded = append(expanded, a)
	}

	return expanded, !hasPrompt
}

// Tail returns the last n lines of the output.
func Tail(output string, n int) string {
	if n <= 0 {
		return ""
	}

	output = strings.TrimRight(output, "\n")
	lines := strings.Split(output, "\n")
	if len(lines) <= n {
		return output
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
