package prompt

import (
	"fmt"
	"strings"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/model"
)

// Verdict tokens the critic must answer with.
const (
	VerdictApproved = "VERDICT: APPROVED"
	VerdictRejected = "VERDICT: REJECTED"
)

// CriticInput is the evidence the critic reviews.
type CriticInput struct {
	Goal               model.Goal
	Iteration          int
	WorkspaceSummary   string
	CompileReport      string
	VerificationReport string
	Memories           []model.Memory
	AgentOutput        string
	OutputTailLines    int
}

// BuildCritic returns the review request for the critic persona.
func BuildCritic(in CriticInput) string {
	var b strings.Builder

	b.WriteString("# Completion Review\n\n")
	b.WriteString("You are a strict code reviewer. Another agent claims it finished the task below ")
	fmt.Fprintf(&b, "on iteration %d. Decide if the task is genuinely complete. Do not modify any file.\n\n", in.Iteration)

	b.WriteString("## Task\n")
	b.WriteString(strings.TrimSpace(in.Goal.Prompt))
	b.WriteString("\n\n")

	section(&b, "Repository Changes", in.WorkspaceSummary, "No repository information available.")
	section(&b, "Compile Check", in.CompileReport, "No compile check configured.")
	section(&b, "Verification Results", in.VerificationReport, "No verification commands.")

	if mem := FormatMemories(in.Memories); mem != "" {
		b.WriteString("## Memory Bank\n")
		b.WriteString(mem)
		b.WriteString("\n")
	}

	if tail := agent.Tail(in.AgentOutput, in.OutputTailLines); tail != "" {
		b.WriteString("## Agent Output (tail)\n```\n")
		b.WriteString(tail)
		b.WriteString("\n```\n\n")
	}

	fmt.Fprintf(&b, `## Answer Format
Start your answer with exactly one of these lines:
%s
%s
When rejecting, list every issue on its own line starting with "- ".
`, VerdictApproved, VerdictRejected)

	return b.String()
}

func section(b *strings.Builder, title, content, empty string) {
	fmt.Fprintf(b, "## %s\n", title)
	content = strings.TrimSpace(content)
	if content == "" {
		b.WriteString(empty)
		b.WriteString("\n\n")
		return
	}
	b.WriteString(content)
	b.WriteString("\n\n")
}
