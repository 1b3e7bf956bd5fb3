package lib_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/pkg/lib"
)

// scriptedAgent appends a line to a project file on every worker invocation and
// claims completion from the given worker call on.
type scriptedAgent struct {
	dir        string
	claimFrom  int
	critic     string
	mu         sync.Mutex
	workerRuns int
	personas   []string
}

func (a *scriptedAgent) Run(_ context.Context, req lib.AgentRequest) (*lib.AgentResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas = append(a.personas, req.Persona)

	switch req.Persona {
	case "ping":
		return &lib.AgentResponse{Output: "pong"}, nil
	case "critic":
		return &lib.AgentResponse{Output: a.critic}, nil
	}

	a.workerRuns++
	f, err := os.OpenFile(filepath.Join(a.dir, "work.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fmt.Fprintf(f, "run %d\n", a.workerRuns)

	out := "working"
	if a.claimFrom > 0 && a.workerRuns >= a.claimFrom {
		out += "\n<promise>DONE</promise>"
	}
	return &lib.AgentResponse{Output: out}, nil
}

// newTestClient creates a client on a temp project for test isolation.
func newTestClient(t *testing.T, agent *scriptedAgent) *lib.Client {
	t.Helper()

	dir := t.TempDir()
	settings := "loop:\n  interval: 1ms\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".ralph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ralph", "config.yaml"), []byte(settings), 0o644))

	cfg := lib.Config{Dir: dir}
	if agent != nil {
		agent.dir = dir
		cfg.Agent = agent.Run
	}

	client, err := lib.New(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

var noNetwork = &lib.LoopOpts{DisableNetworkCheck: true}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		cfg    func(dir string) lib.Config
		expErr bool
		expIs  error
	}{
		"An empty project should use the default settings.": {
			cfg: func(dir string) lib.Config { return lib.Config{Dir: dir} },
		},
		"An unknown runtime should fail.": {
			cfg:    func(dir string) lib.Config { return lib.Config{Dir: dir, Runtime: "vm"} },
			expErr: true,
			expIs:  lib.ErrNotValid,
		},
		"An invalid settings file should fail.": {
			cfg: func(dir string) lib.Config {
				path := filepath.Join(dir, "settings.yaml")
				_ = os.WriteFile(path, []byte("loop:\n  max_consecutive_failures: 0\n"), 0o644)
				return lib.Config{Dir: dir, SettingsFile: path}
			},
			expErr: true,
			expIs:  lib.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			client, err := lib.New(context.Background(), test.cfg(t.TempDir()))
			if test.expErr {
				assert.Error(err)
				if test.expIs != nil {
					assert.ErrorIs(err, test.expIs)
				}
				return
			}

			if assert.NoError(err) {
				assert.NoError(client.Close())
			}
		})
	}
}

func TestEnableAndStatus(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	client := newTestClient(t, nil)

	st, err := client.Status(ctx)
	require.NoError(err)
	assert.Nil(st.Run)

	run, err := client.Enable(ctx, lib.EnableOpts{Prompt: "Fix the tests", MaxIterations: 3, CompletionPromise: "DONE"})
	require.NoError(err)
	assert.NotEmpty(run.ID)
	assert.Equal(lib.RunModeSingle, run.Mode)
	assert.Equal(1, run.Iteration)

	_, err = client.Enable(ctx, lib.EnableOpts{Prompt: "Other"})
	assert.ErrorIs(err, lib.ErrRunActive)

	st, err = client.Status(ctx)
	require.NoError(err)
	require.NotNil(st.Run)
	assert.Equal(run.ID, st.Run.ID)
	assert.Equal("Fix the tests", st.GoalPrompt)
	assert.Equal(1, st.HistoryCount)

	disabled, err := client.Disable(ctx)
	require.NoError(err)
	require.NotNil(disabled)
	assert.Equal(run.ID, disabled.ID)

	disabled, err = client.Disable(ctx)
	require.NoError(err)
	assert.Nil(disabled)
}

func TestRunCompletesGoal(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	agent := &scriptedAgent{claimFrom: 1, critic: "VERDICT: APPROVED"}
	client := newTestClient(t, agent)

	_, err := client.Enable(ctx, lib.EnableOpts{Prompt: "Write the log", MaxIterations: 5, CompletionPromise: "DONE"})
	require.NoError(err)

	report, err := client.Run(ctx, noNetwork)
	require.NoError(err)
	assert.Equal(lib.LoopPhaseCompleted, report.Phase)
	assert.Equal(2, report.Iterations)
	assert.Equal([]string{"ping", "worker", "worker", "critic"}, agent.personas)

	entries, err := client.History(ctx, nil)
	require.NoError(err)
	outcomes := []string{}
	for _, e := range entries {
		outcomes = append(outcomes, e.Outcome)
	}
	assert.Equal([]string{"enabled", "rejected", "completed"}, outcomes)

	st, err := client.Status(ctx)
	require.NoError(err)
	assert.Nil(st.Run)
}

func TestRunHaltsWhenCriticRejects(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	agent := &scriptedAgent{claimFrom: 2, critic: "VERDICT: REJECTED\n- ISSUE: the log is empty"}
	client := newTestClient(t, agent)

	_, err := client.Enable(ctx, lib.EnableOpts{Prompt: "Write the log", MaxIterations: 3, CompletionPromise: "DONE"})
	require.NoError(err)

	report, err := client.Run(ctx, &lib.LoopOpts{DisableNetworkCheck: true, SkipPreflight: true})
	assert.ErrorIs(err, lib.ErrHalted)
	require.NotNil(report)
	assert.Equal(lib.LoopPhaseHalted, report.Phase)
	assert.Equal("iteration_limit_reached", report.HaltReason)
	assert.Equal(3, report.Iterations)
	assert.NotContains(agent.personas, "ping")
}

func TestBatchRun(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	agent := &scriptedAgent{claimFrom: 1, critic: "VERDICT: APPROVED"}
	client := newTestClient(t, agent)

	run, tasks, err := client.BatchInit(ctx, lib.BatchOpts{
		Tasks: []lib.Task{
			{Prompt: "First task"},
			{ID: "DOCS", Title: "Docs", Prompt: "Write the docs"},
		},
		CompletionPromise: "DONE",
	})
	require.NoError(err)
	assert.Equal(lib.RunModeBatch, run.Mode)
	assert.Equal(2, run.TasksTotal)
	require.Len(tasks, 2)
	assert.Equal("TASK-001", tasks[0].ID)
	assert.Equal("DOCS", tasks[1].ID)

	report, err := client.Run(ctx, noNetwork)
	require.NoError(err)
	assert.Equal(lib.LoopPhaseCompleted, report.Phase)

	entries, err := client.History(ctx, nil)
	require.NoError(err)
	completed := []string{}
	for _, e := range entries {
		if e.Outcome == "task_completed" {
			completed = append(completed, e.TaskID)
		}
	}
	assert.Equal([]string{"TASK-001", "DOCS"}, completed)
}

func TestNextTask(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	client := newTestClient(t, nil)

	_, err := client.NextTask(ctx)
	assert.ErrorIs(err, lib.ErrNoActiveRun)

	_, _, err = client.BatchInit(ctx, lib.BatchOpts{Tasks: []lib.Task{{Prompt: "one"}, {Prompt: "two"}}})
	require.NoError(err)

	next, err := client.NextTask(ctx)
	require.NoError(err)
	require.NotNil(next)
	assert.Equal("TASK-002", next.ID)

	next, err = client.NextTask(ctx)
	require.NoError(err)
	assert.Nil(next)

	st, err := client.Status(ctx)
	require.NoError(err)
	assert.Nil(st.Run)
}

func TestSetForcedOffline(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	client := newTestClient(t, nil)

	ns, err := client.SetForcedOffline(ctx, true)
	require.NoError(err)
	assert.True(ns.ForcedOffline)
	assert.False(ns.Reachable)

	ns, err = client.SetForcedOffline(ctx, false)
	require.NoError(err)
	assert.False(ns.ForcedOffline)
}

func TestErrorsAreMapped(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, nil)

	_, err := client.Enable(ctx, lib.EnableOpts{Prompt: "  "})
	assert.ErrorIs(t, err, lib.ErrNotValid)
	assert.True(t, strings.Contains(err.Error(), "prompt"))
}
