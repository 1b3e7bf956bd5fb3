package hook_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/hook"
	"github.com/slok/ralph/internal/model"
)

func TestRunnerRun(t *testing.T) {
	tests := map[string]struct {
		script   string
		scriptX  bool
		commands func(out string) map[string]string
		hook     string
		expOut   string
	}{
		"A configured command should run with the hook env.": {
			commands: func(out string) map[string]string {
				return map[string]string{model.HookOnCompletion: `echo "$RALPH_HOOK $RALPH_ITERATION" > ` + out}
			},
			hook:   model.HookOnCompletion,
			expOut: "on-completion 3\n",
		},
		"An executable script in the hooks dir should run.": {
			script:  "#!/bin/sh\necho \"script $RALPH_TASK_ID\" > \"$OUT\"\n",
			scriptX: true,
			hook:    model.HookPreIteration,
			expOut:  "script TASK-001\n",
		},
		"A configured command should take precedence over the script.": {
			script:  "#!/bin/sh\necho script > \"$OUT\"\n",
			scriptX: true,
			commands: func(out string) map[string]string {
				return map[string]string{model.HookPreIteration: "echo command > " + out}
			},
			hook:   model.HookPreIteration,
			expOut: "command\n",
		},
		"A non executable script should be ignored.": {
			script:  "#!/bin/sh\necho script > \"$OUT\"\n",
			scriptX: false,
			hook:    model.HookPreIteration,
			expOut:  "",
		},
		"A failing hook should be ignored.": {
			commands: func(out string) map[string]string {
				return map[string]string{model.HookPostIteration: "exit 7"}
			},
			hook:   model.HookPostIteration,
			expOut: "",
		},
		"A missing hook should do nothing.": {
			hook:   model.HookOnNetworkWait,
			expOut: "",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			dir := t.TempDir()
			hooksDir := filepath.Join(dir, "hooks")
			require.NoError(os.MkdirAll(hooksDir, 0o755))
			out := filepath.Join(dir, "out.txt")

			if test.script != "" {
				perm := os.FileMode(0o644)
				if test.scriptX {
					perm = 0o755
				}
				require.NoError(os.WriteFile(filepath.Join(hooksDir, test.hook), []byte(test.script), perm))
			}

			var commands map[string]string
			if test.commands != nil {
				commands = test.commands(out)
			}

			r, err := hook.NewRunner(hook.RunnerConfig{
				Dir:      hooksDir,
				Commands: commands,
				WorkDir:  dir,
				Timeout:  5 * time.Second,
			})
			require.NoError(err)

			r.Run(context.Background(), test.hook, map[string]string{
				"RALPH_ITERATION": "3",
				"RALPH_TASK_ID":   "TASK-001",
				"OUT":             out,
			})

			got, _ := os.ReadFile(out)
			assert.Equal(test.expOut, string(got))
		})
	}
}

func TestNewRunnerUnknownHook(t *testing.T) {
	_, err := hook.NewRunner(hook.RunnerConfig{Commands: map[string]string{"pre-push": "true"}})
	assert.Error(t, err)
}

func TestEnv(t *testing.T) {
	got := hook.Env(model.RunState{
		RunID:         "r1",
		Iteration:     2,
		MaxIterations: 5,
		Mode:          model.RunModeBatch,
		CurrentTaskID: "TASK-002",
	}, 1)

	assert.Equal(t, map[string]string{
		"RALPH_ITERATION":      "2",
		"RALPH_MAX_ITERATIONS": "5",
		"RALPH_TASK_ID":        "TASK-002",
		"RALPH_MODE":           "batch",
		"RALPH_EXIT_CODE":      "1",
		"RALPH_RUN_ID":         "r1",
	}, got)
}
