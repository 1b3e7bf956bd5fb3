package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/prompt"
)

func TestBuildContext(t *testing.T) {
	tests := map[string]struct {
		in          prompt.ContextInput
		expContains []string
		expMissing  []string
		expPrefix   string
	}{
		"A first iteration should have the task, the rules and the promise.": {
			in: prompt.ContextInput{
				State: model.RunState{Iteration: 1, Mode: model.RunModeSingle},
				Goal:  model.Goal{Prompt: "Fix the tests", MaxIterations: 5, CompletionPromise: "DONE"},
			},
			expPrefix: "# Iteration 1 / 5\n",
			expContains: []string{
				"## Task\nFix the tests\n",
				"## Rules\n",
				"<promise>DONE</promise>",
			},
			expMissing: []string{
				"## Previous Completion Rejected",
				"## Last Iteration Output",
				"## Batch Mode",
			},
		},
		"Rejection feedback should be at the top of the context.": {
			in: prompt.ContextInput{
				State:             model.RunState{Iteration: 3, Mode: model.RunModeSingle},
				Goal:              model.Goal{Prompt: "Fix the tests"},
				RejectionFeedback: "- compile error in main.go",
			},
			expPrefix: "## Previous Completion Rejected\n",
			expContains: []string{
				"- compile error in main.go",
				"# Iteration 3\n",
			},
			expMissing: []string{
				"## Completion",
			},
		},
		"The last output should be included after the first iteration.": {
			in: prompt.ContextInput{
				State:           model.RunState{Iteration: 2, Mode: model.RunModeSingle},
				Goal:            model.Goal{Prompt: "p"},
				LastOutput:      "a\nb\nc\n",
				OutputTailLines: 2,
			},
			expContains: []string{
				"## Last Iteration Output (tail)\n```\nb\nc\n```",
			},
		},
		"Batch runs should show the task position.": {
			in: prompt.ContextInput{
				State: model.RunState{Iteration: 1, Mode: model.RunModeBatch, CurrentTaskIndex: 1, TasksTotal: 3},
				Goal:  model.Goal{TaskID: "TASK-002", TaskTitle: "Docs", Prompt: "Write docs"},
			},
			expContains: []string{
				"## Batch Mode\nTask 2 of 3: TASK-002, Docs\n",
			},
		},
		"Memories, repository state and history should be included.": {
			in: prompt.ContextInput{
				State: model.RunState{Iteration: 2, Mode: model.RunModeSingle, AutoSubagents: true},
				Goal:  model.Goal{Prompt: "p"},
				Memories: []model.Memory{
					{Kind: model.MemoryKindError, Iteration: 1, Content: "critic: missing\ntests"},
				},
				WorkspaceSummary: "Changed files:\n M main.go",
				History: []model.HistoryEntry{
					{Iteration: 1, Outcome: model.HistoryOutcomeRejected, Notes: "critic"},
				},
			},
			expContains: []string{
				"- [error, iteration 1] critic: missing tests\n",
				"## Repository State\n```\nChanged files:\n M main.go\n```",
				"#1 rejected: critic\n",
				"## Sub-agents (enabled)",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got := prompt.BuildContext(test.in)

			if test.expPrefix != "" {
				assert.True(strings.HasPrefix(got, test.expPrefix), got)
			}
			for _, c := range test.expContains {
				assert.Contains(got, c)
			}
			for _, c := range test.expMissing {
				assert.NotContains(got, c)
			}
		})
	}
}

func TestBuildCritic(t *testing.T) {
	assert := assert.New(t)

	got := prompt.BuildCritic(prompt.CriticInput{
		Goal:               model.Goal{Prompt: "Add login"},
		Iteration:          4,
		WorkspaceSummary:   "Changed files:\n A login.go",
		VerificationReport: "- [PASS] `go test ./...`",
		AgentOutput:        "done\n<promise>DONE</promise>\n",
		OutputTailLines:    5,
	})

	assert.Contains(got, "on iteration 4")
	assert.Contains(got, "## Task\nAdd login\n")
	assert.Contains(got, "A login.go")
	assert.Contains(got, "## Compile Check\nNo compile check configured.\n")
	assert.Contains(got, "- [PASS] `go test ./...`")
	assert.Contains(got, prompt.VerdictApproved)
	assert.Contains(got, prompt.VerdictRejected)
}

func TestFormatMemories(t *testing.T) {
	got := prompt.FormatMemories([]model.Memory{
		{Kind: model.MemoryKindEpisodic, Iteration: 2, TaskID: "TASK-001", Content: "success"},
		{Kind: model.MemoryKindEpisodic, Iteration: 3, Content: "   "},
	})

	assert.Equal(t, "- [episodic, iteration 2, TASK-001] success\n", got)
}
