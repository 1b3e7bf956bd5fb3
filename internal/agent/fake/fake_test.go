package fake_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/agent/fake"
)

func TestRunner(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	touched := 0
	r, err := fake.NewRunner(fake.RunnerConfig{
		Steps: map[string][]fake.Step{
			agent.PersonaWorker: {
				{Output: "first", Do: func(agent.Invocation) { touched++ }},
				{Output: "second", ExitCode: 1},
				{Err: fmt.Errorf("missing binary")},
			},
		},
		Default: fake.Step{Output: "default"},
	})
	require.NoError(err)

	worker := agent.Invocation{Persona: agent.PersonaWorker, Prompt: "p"}

	res, err := r.Run(ctx, worker)
	require.NoError(err)
	assert.Equal("first", res.Output)
	assert.Equal(1, touched)

	res, err = r.Run(ctx, worker)
	require.NoError(err)
	assert.Equal(1, res.ExitCode)

	_, err = r.Run(ctx, worker)
	assert.Error(err)

	// Exhausted script falls back to the default.
	res, err = r.Run(ctx, worker)
	require.NoError(err)
	assert.Equal("default", res.Output)

	// Critic and ping have their own defaults.
	res, err = r.Run(ctx, agent.Invocation{Persona: agent.PersonaCritic})
	require.NoError(err)
	assert.Equal("VERDICT: APPROVED\n", res.Output)
	res, err = r.Run(ctx, agent.Invocation{Persona: agent.PersonaPing})
	require.NoError(err)
	assert.Equal("pong\n", res.Output)

	assert.Equal(4, r.Count(agent.PersonaWorker))
	assert.Len(r.Invocations(), 6)
}

func TestRunnerCancelledContext(t *testing.T) {
	r, err := fake.NewRunner(fake.RunnerConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, agent.Invocation{})
	assert.ErrorIs(t, err, context.Canceled)
}
