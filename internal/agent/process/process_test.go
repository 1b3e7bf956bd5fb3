//go:build !windows

package process_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/agent"
	"github.com/slok/ralph/internal/agent/process"
)

func TestRunnerRun(t *testing.T) {
	tests := map[string]struct {
		command     string
		args        []string
		env         map[string]string
		inv         agent.Invocation
		expOutput   string
		expExitCode int
		expTimedOut bool
		expErr      bool
	}{
		"the prompt placeholder should be passed as argument": {
			command:   "sh",
			args:      []string{"-c", "echo \"$0\"", "{prompt}"},
			inv:       agent.Invocation{Prompt: "hello agent"},
			expOutput: "hello agent\n",
		},
		"without prompt placeholder the prompt should go to stdin": {
			command:   "sh",
			args:      []string{"-c", "cat"},
			inv:       agent.Invocation{Prompt: "from stdin"},
			expOutput: "from stdin",
		},
		"the exit code and stderr should be captured": {
			command:     "sh",
			args:        []string{"-c", "echo oops >&2; exit 3"},
			inv:         agent.Invocation{Prompt: "x"},
			expOutput:   "oops\n",
			expExitCode: 3,
		},
		"configured and invocation env should be set": {
			command:   "sh",
			args:      []string{"-c", "echo $A-$B"},
			env:       map[string]string{"A": "1", "B": "2"},
			inv:       agent.Invocation{Prompt: "x", Env: map[string]string{"B": "3"}},
			expOutput: "1-3\n",
		},
		"a slow agent should time out": {
			command:     "sh",
			args:        []string{"-c", "sleep 10"},
			inv:         agent.Invocation{Prompt: "x", Timeout: 200 * time.Millisecond},
			expExitCode: -1,
			expTimedOut: true,
		},
		"a missing binary should fail": {
			command: "ralph-agent-that-does-not-exist",
			inv:     agent.Invocation{Prompt: "x"},
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			stream := &bytes.Buffer{}
			r, err := process.NewRunner(process.RunnerConfig{
				Command: test.command,
				Args:    test.args,
				WorkDir: t.TempDir(),
				Env:     test.env,
				Stream:  stream,
			})
			require.NoError(err)

			res, err := r.Run(context.Background(), test.inv)
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			assert.Equal(test.expOutput, res.Output)
			assert.Equal(test.expOutput, stream.String())
			assert.Equal(test.expExitCode, res.ExitCode)
			assert.Equal(test.expTimedOut, res.TimedOut)
		})
	}
}

func TestRunnerCancel(t *testing.T) {
	r, err := process.NewRunner(process.RunnerConfig{
		Command: "sh",
		Args:    []string{"-c", "sleep 10"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = r.Run(ctx, agent.Invocation{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
