package iteration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/iteration"
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/storage/memory"
)

type stubSummarizer string

func (s stubSummarizer) Summary(context.Context) (string, error) { return string(s), nil }

func TestContextAssemblerBuildContext(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	ts := time.Now()
	require.NoError(repo.SaveOutput(ctx, "previous output line"))
	require.NoError(repo.AppendHistory(ctx, model.HistoryEntry{ID: "1", RunID: "old", Iteration: 9, Outcome: model.HistoryOutcomeFailure, Timestamp: ts}))
	require.NoError(repo.AppendHistory(ctx, model.HistoryEntry{ID: "2", RunID: "run1", Iteration: 1, Outcome: model.HistoryOutcomeRejected, Notes: "min_iteration", Timestamp: ts}))
	require.NoError(repo.AddMemory(ctx, model.Memory{ID: "m1", RunID: "run1", Iteration: 1, Kind: model.MemoryKindError, Content: "claimed too early", CreatedAt: ts}))

	a, err := iteration.NewContextAssembler(iteration.ContextAssemblerConfig{
		History:   repo,
		Outputs:   repo,
		Memories:  repo,
		Workspace: stubSummarizer("Changed files:\n M a.go"),
	})
	require.NoError(err)

	got, err := a.BuildContext(ctx, model.RunState{
		RunID:             "run1",
		Iteration:         2,
		Mode:              model.RunModeSingle,
		RejectionFeedback: "Rejected by the min_iteration gate:\n- too early",
	}, model.Goal{Prompt: "Build it", CompletionPromise: "DONE"})
	require.NoError(err)

	assert.Contains(got, "## Previous Completion Rejected")
	assert.Contains(got, "- too early")
	assert.Contains(got, "## Task\nBuild it")
	assert.Contains(got, "previous output line")
	assert.Contains(got, "#1 rejected: min_iteration")
	assert.NotContains(got, "#9 failure")
	assert.Contains(got, "claimed too early")
	assert.Contains(got, "M a.go")
	assert.Contains(got, "<promise>DONE</promise>")
}
