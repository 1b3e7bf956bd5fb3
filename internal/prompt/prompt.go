// Package prompt builds the texts sent to the coding agent: the iteration
// context for the worker and the review request for the critic.
package prompt

import (
	"fmt"
	"strings"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/model"
)

// ContextInput is everything the iteration context is built from.
type ContextInput struct {
	State model.RunState
	Goal  model.Goal
	// RejectionFeedback is the feedback of the last rejected completion claim.
	RejectionFeedback string
	LastOutput        string
	OutputTailLines   int
	History           []model.HistoryEntry
	Memories          []model.Memory
	WorkspaceSummary  string
}

const maxHistoryEntries = 10

// BuildContext returns the prompt for a worker iteration. Rejection feedback
// always goes first so the agent addresses it before anything else.
func BuildContext(in ContextInput) string {
	var b strings.Builder

	if in.RejectionFeedback != "" {
		b.WriteString("## Previous Completion Rejected\n")
		b.WriteString("Your last completion claim was rejected. Fix these issues before claiming completion again:\n\n")
		b.WriteString(strings.TrimSpace(in.RejectionFeedback))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "# Iteration %d", in.State.Iteration)
	if in.Goal.MaxIterations > 0 {
		fmt.Fprintf(&b, " / %d", in.Goal.MaxIterations)
	}
	b.WriteString("\n\n")

	b.WriteString("## Task\n")
	b.WriteString(strings.TrimSpace(in.Goal.Prompt))
	b.WriteString("\n\n")

	if in.State.IsBatch() {
		b.WriteString("## Batch Mode\n")
		fmt.Fprintf(&b, "Task %d of %d: %s", in.State.CurrentTaskIndex+1, in.State.TasksTotal, in.Goal.TaskID)
		if in.Goal.TaskTitle != "" {
			fmt.Fprintf(&b, ", %s", in.Goal.TaskTitle)
		}
		b.WriteString("\n\n")
	}

	if mem := FormatMemories(in.Memories); mem != "" {
		b.WriteString("## Memory Bank (from previous iterations)\n")
		b.WriteString(mem)
		b.WriteString("\n")
	}

	if in.WorkspaceSummary != "" {
		b.WriteString("## Repository State\n```\n")
		b.WriteString(strings.TrimSpace(in.WorkspaceSummary))
		b.WriteString("\n```\n\n")
	}

	if tail := agent.Tail(in.LastOutput, in.OutputTailLines); tail != "" && in.State.Iteration > 1 {
		b.WriteString("## Last Iteration Output (tail)\n```\n")
		b.WriteString(tail)
		b.WriteString("\n```\n\n")
	}

	if h := formatHistory(in.History); h != "" {
		b.WriteString("## History Log\n```\n")
		b.WriteString(h)
		b.WriteString("```\n\n")
	}

	b.WriteString(`## Rules
1. Continue from where you left off, do not restart the task.
2. Make real file changes, an iteration without changes counts as a failure.
3. Read files before editing them and keep the existing style.
4. Run the relevant tests or linters when available.
5. If something blocks you, document the blocker instead of claiming completion.

`)

	if in.Goal.CompletionPromise != "" {
		b.WriteString("## Completion\n")
		b.WriteString("When ALL acceptance criteria are met, output exactly:\n```\n")
		b.WriteString(agent.PromiseTag(in.Goal.CompletionPromise))
		b.WriteString("\n```\n")
		b.WriteString("Only when genuinely complete, your claim will be verified and reviewed.\n\n")
	}

	if in.State.AutoSubagents {
		b.WriteString("## Sub-agents (enabled)\n")
		b.WriteString("You may create specialized sub-agents for parts of the task and delegate to them.\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// FormatMemories formats memory bank entries as a markdown list.
func FormatMemories(memories []model.Memory) string {
	var b strings.Builder
	for _, m := range memories {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "- [%s, iteration %d", m.Kind, m.Iteration)
		if m.TaskID != "" {
			fmt.Fprintf(&b, ", %s", m.TaskID)
		}
		fmt.Fprintf(&b, "] %s\n", oneLine(content))
	}
	return b.String()
}

func formatHistory(entries []model.HistoryEntry) string {
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "#%d %s", e.Iteration, e.Outcome)
		if e.TaskID != "" {
			fmt.Fprintf(&b, " [%s]", e.TaskID)
		}
		if e.Notes != "" {
			fmt.Fprintf(&b, ": %s", oneLine(e.Notes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:197] + "..."
	}
	return s
}
